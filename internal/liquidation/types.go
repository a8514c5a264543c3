package liquidation

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Exchange 抽象清算所需的交易所能力，可替换为真实客户端或模拟实现。
type Exchange interface {
	// GetBalance 返回账户当前可用的资产数量。
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	// PlaceMarketSellOrder 以市价卖出指定数量；false 表示订单未成交但不属于错误。
	PlaceMarketSellOrder(ctx context.Context, asset string, amount decimal.Decimal) (bool, error)
}

// Outcome 为单个资产的清算结果，Err 为 nil 时 Amount 为实际清算数量。
type Outcome struct {
	Amount decimal.Decimal
	Err    error
}

// OK 表示该资产清算成功（数量可能为零）。
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Results 以资产为键保存每个资产独立的清算结果。
type Results map[string]Outcome

// Assets 返回排序后的资产列表，便于稳定输出。
func (r Results) Assets() []string {
	assets := make([]string, 0, len(r))
	for asset := range r {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Failed 返回失败资产及其错误。
func (r Results) Failed() map[string]error {
	failed := make(map[string]error)
	for asset, outcome := range r {
		if outcome.Err != nil {
			failed[asset] = outcome.Err
		}
	}
	return failed
}

// Options 控制清算执行方式。
type Options struct {
	// Concurrency 为同时处理的资产数上限，<=0 表示不限制，1 表示顺序执行。
	Concurrency int
}
