package liquidation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service 将非目标资产按请求数量卖出为目标资产。
type Service struct {
	exchange Exchange
	opts     Options
	logger   *zap.Logger
}

// NewService 创建清算服务。
func NewService(exchange Exchange, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		exchange: exchange,
		opts:     opts,
		logger:   logger,
	}
}

type slot struct {
	asset   string
	outcome Outcome
}

// LiquidateAssets 逐资产独立清算，返回除目标资产外每个请求资产的结果。
// 单个资产失败不会影响其他资产，调用方需逐项检查结果。
func (s *Service) LiquidateAssets(ctx context.Context, requests map[string]decimal.Decimal, targetAsset string) Results {
	logger := s.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("target_asset", targetAsset),
	)

	slots := make([]slot, 0, len(requests))
	amounts := make([]decimal.Decimal, 0, len(requests))
	for asset, amount := range requests {
		if asset == targetAsset {
			logger.Debug("跳过目标资产", zap.String("asset", asset))
			continue
		}
		slots = append(slots, slot{asset: asset})
		amounts = append(amounts, amount)
	}

	var group errgroup.Group
	if s.opts.Concurrency > 0 {
		group.SetLimit(s.opts.Concurrency)
	}

	for i := range slots {
		group.Go(func() error {
			slots[i].outcome = s.liquidateSingle(ctx, slots[i].asset, amounts[i])
			return nil
		})
	}
	_ = group.Wait()

	results := make(Results, len(slots))
	for _, sl := range slots {
		results[sl.asset] = sl.outcome
		if sl.outcome.Err != nil {
			logger.Warn("资产清算失败",
				zap.String("asset", sl.asset),
				zap.Error(sl.outcome.Err),
			)
			continue
		}
		logger.Debug("资产清算完成",
			zap.String("asset", sl.asset),
			zap.Stringer("amount", sl.outcome.Amount),
		)
	}

	return results
}

func (s *Service) liquidateSingle(ctx context.Context, asset string, requested decimal.Decimal) Outcome {
	balance, err := s.exchange.GetBalance(ctx, asset)
	if err != nil {
		return Outcome{Amount: decimal.Zero, Err: err}
	}

	amount := decimal.Min(requested, balance)
	if !amount.IsPositive() {
		return Outcome{Amount: decimal.Zero}
	}

	executed, err := s.exchange.PlaceMarketSellOrder(ctx, asset, amount)
	if err != nil {
		return Outcome{Amount: decimal.Zero, Err: err}
	}
	if !executed {
		return Outcome{Amount: decimal.Zero}
	}
	return Outcome{Amount: amount}
}
