package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidator/internal/config"
	"liquidator/internal/liquidation"
)

type spotClient interface {
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
}

// Client 通过 ccxt 现货接口实现清算所需的交易所能力。
type Client struct {
	name   string
	quote  string
	client spotClient
	logger *zap.Logger
}

var _ liquidation.Exchange = (*Client)(nil)

// NewClient 构造现货交易客户端，quote 为卖出资产所得的计价资产。
func NewClient(cfg config.ExchangeConfig, quote string, logger *zap.Logger) (*Client, error) {
	if quote == "" {
		return nil, fmt.Errorf("exchange: 计价资产不能为空")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}
	if cfg.Timeout > 0 {
		userConfig["timeout"] = cfg.Timeout.Milliseconds()
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	var raw spotClient
	switch strings.ToLower(cfg.Name) {
	case "binance":
		ex := ccxt.NewBinance(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		raw = ex
	case "okx":
		ex := ccxt.NewOkx(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		raw = ex
	case "bybit":
		ex := ccxt.NewBybit(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		raw = ex
	default:
		return nil, fmt.Errorf("exchange: 不支持的交易所 %q", cfg.Name)
	}

	return newClient(cfg.Name, quote, raw, logger), nil
}

func newClient(name, quote string, raw spotClient, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		name:   name,
		quote:  quote,
		client: raw,
		logger: logger.With(zap.String("exchange", name)),
	}
}

// Symbol 返回资产对应的现货交易对。
func (c *Client) Symbol(asset string) string {
	return asset + "/" + c.quote
}

// GetBalance 返回资产的可用余额。
func (c *Client) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var balances ccxt.Balances
	err := c.call(ctx, "fetch_balance", func() error {
		result, err := c.client.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	if err != nil {
		return decimal.Zero, classifyError(err, fmt.Sprintf("fetch balance %s", asset))
	}

	free, ok := balances.Free[asset]
	if !ok || free == nil {
		return decimal.Zero, liquidation.ExchangeErrorf("asset not found: %s", asset)
	}
	return decimal.NewFromFloat(*free), nil
}

// PlaceMarketSellOrder 提交市价卖单；交易所判定为无效订单或订单被拒时返回 false。
func (c *Client) PlaceMarketSellOrder(ctx context.Context, asset string, amount decimal.Decimal) (bool, error) {
	symbol := c.Symbol(asset)

	var order ccxt.Order
	err := c.call(ctx, "create_market_sell_order", func() error {
		result, err := c.client.CreateMarketOrder(symbol, "sell", amount.InexactFloat64())
		if err != nil {
			return err
		}
		order = result
		return nil
	})
	if err != nil {
		if isInvalidOrder(err) {
			c.logger.Info("交易所拒绝订单，视为未成交",
				zap.String("symbol", symbol),
				zap.Stringer("amount", amount),
				zap.Error(err),
			)
			return false, nil
		}
		return false, classifyError(err, fmt.Sprintf("sell %s", symbol))
	}

	if order.Status != nil {
		switch strings.ToLower(*order.Status) {
		case "rejected", "canceled", "cancelled", "expired":
			c.logger.Info("市价卖单未成交",
				zap.String("symbol", symbol),
				zap.String("status", *order.Status),
			)
			return false, nil
		}
	}

	return true, nil
}

func (c *Client) call(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		c.logger.Warn("交易所调用失败",
			zap.String("operation", operation),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("交易所调用完成",
		zap.String("operation", operation),
		zap.Duration("latency", latency),
	)
	return nil
}
