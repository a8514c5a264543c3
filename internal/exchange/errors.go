package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"liquidator/internal/liquidation"
)

var (
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = errors.New("exchange on maintenance")
)

// classifyError 将 ccxt 错误映射为清算错误类别。
func classifyError(err error, detail string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return liquidation.WrapExchangeError(err, detail)
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.InsufficientFundsErrType:
			return &liquidation.Error{
				Kind:   liquidation.KindInsufficientBalance,
				Detail: detail,
				Err:    err,
			}
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return liquidation.WrapExchangeError(fmt.Errorf("%w: %s", ErrMaintenance, message), detail)
		}
	}

	return liquidation.WrapExchangeError(err, detail)
}

func isInvalidOrder(err error) bool {
	var ccxtErr *ccxt.Error
	if !errors.As(err, &ccxtErr) {
		return false
	}
	return ccxtErr.Type == ccxt.InvalidOrderErrType
}

// IsRetryable 判断错误是否属于网络类临时故障，供调用方决定是否稍后重新发起清算。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
