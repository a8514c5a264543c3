package liquidation

import (
	"fmt"
)

// ErrorKind 区分清算失败的类别。
type ErrorKind uint8

const (
	// KindExchange 表示交易所无法完成余额查询或卖单。
	KindExchange ErrorKind = iota + 1
	// KindInsufficientBalance 表示余额不足。核心流程通过截断处理不足，不会产生该类错误。
	KindInsufficientBalance
)

func (k ErrorKind) String() string {
	switch k {
	case KindExchange:
		return "exchange"
	case KindInsufficientBalance:
		return "insufficient_balance"
	default:
		return "unknown"
	}
}

var (
	// ErrExchange 可配合 errors.Is 判断任意交易所类错误。
	ErrExchange = &Error{Kind: KindExchange}
	// ErrInsufficientBalance 可配合 errors.Is 判断任意余额不足错误。
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
)

// Error 为清算错误，Detail 为可读描述，Err 为可选的底层原因。
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInsufficientBalance:
		return "insufficient balance for " + e.Detail
	default:
		return "exchange error: " + e.Detail
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按类别匹配；目标带 Detail 时同时要求描述一致。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Detail == "" || t.Detail == e.Detail
}

// ExchangeError 构造交易所类错误。
func ExchangeError(detail string) error {
	return &Error{Kind: KindExchange, Detail: detail}
}

// ExchangeErrorf 以格式化描述构造交易所类错误。
func ExchangeErrorf(format string, args ...interface{}) error {
	return &Error{Kind: KindExchange, Detail: fmt.Sprintf(format, args...)}
}

// WrapExchangeError 将底层错误包装为交易所类错误，保留原因供 errors.As 使用。
func WrapExchangeError(err error, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindExchange, Detail: fmt.Sprintf("%s: %v", detail, err), Err: err}
}

// InsufficientBalance 构造余额不足错误，供交易所实现或扩展使用。
func InsufficientBalance(detail string) error {
	return &Error{Kind: KindInsufficientBalance, Detail: detail}
}
