package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liquidator/internal/exchange"
	"liquidator/internal/liquidation"
	"liquidator/internal/metrics"
)

type orchestrator struct {
	service  *liquidation.Service
	requests map[string]decimal.Decimal
	target   string
	logger   *zap.Logger
}

func newOrchestrator(service *liquidation.Service, requests map[string]decimal.Decimal, target string, logger *zap.Logger) *orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orchestrator{
		service:  service,
		requests: requests,
		target:   target,
		logger:   logger,
	}
}

// Tick 执行一次清算并输出逐资产报告，返回的错误汇总了失败资产，不代表整批中止。
func (o *orchestrator) Tick(ctx context.Context) (liquidation.Results, error) {
	start := time.Now()
	results := o.service.LiquidateAssets(ctx, o.requests, o.target)
	elapsed := time.Since(start)
	metrics.ObserveRun(elapsed)

	var (
		failures   error
		liquidated int
	)
	for _, asset := range results.Assets() {
		outcome := results[asset]
		metrics.ObserveOutcome(asset, outcome.Amount, outcome.Err)

		if outcome.Err != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", asset, outcome.Err))
			o.logger.Warn("资产清算失败",
				zap.String("asset", asset),
				zap.Stringer("requested", o.requests[asset]),
				zap.Bool("retryable", exchange.IsRetryable(outcome.Err)),
				zap.Error(outcome.Err),
			)
			continue
		}

		if outcome.Amount.IsPositive() {
			liquidated++
		}
		o.logger.Info("资产清算结果",
			zap.String("asset", asset),
			zap.Stringer("requested", o.requests[asset]),
			zap.Stringer("liquidated", outcome.Amount),
		)
	}

	o.logger.Info("本轮清算完成",
		zap.String("target_asset", o.target),
		zap.Int("assets", len(results)),
		zap.Int("liquidated", liquidated),
		zap.Int("failed", len(multierr.Errors(failures))),
		zap.Duration("elapsed", elapsed),
	)

	return results, failures
}
