package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidator/internal/config"
	"liquidator/internal/exchange"
	"liquidator/internal/liquidation"
	"liquidator/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。模拟模式下 store 不能为空。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行清算；scheduler.interval 为 0 时只执行一次，否则按间隔循环直至 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("清算服务已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("mode", a.cfg.Exchange.Mode),
		zap.String("target_asset", a.cfg.Liquidation.TargetAsset),
		zap.Int("requests", len(a.cfg.Liquidation.Requests)),
	)

	ex, err := a.newExchange(ctx)
	if err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		if _, err := startMetricsServer(ctx, a.cfg.Metrics.Port, a.logger); err != nil {
			return err
		}
	}

	service := liquidation.NewService(ex, liquidation.Options{
		Concurrency: a.cfg.Liquidation.Concurrency,
	}, a.logger)
	orch := newOrchestrator(service, a.cfg.Liquidation.RequestMap(), a.cfg.Liquidation.TargetAsset, a.logger)

	if _, err := orch.Tick(ctx); err != nil {
		a.logger.Error("部分资产清算失败", zap.Error(err))
	}

	interval := a.cfg.Scheduler.Interval
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if _, err := orch.Tick(ctx); err != nil {
				a.logger.Error("部分资产清算失败", zap.Error(err))
			}
		}
	}
}

func (a *App) newExchange(ctx context.Context) (liquidation.Exchange, error) {
	if !a.cfg.Exchange.IsPaper() {
		client, err := exchange.NewClient(a.cfg.Exchange, a.cfg.Liquidation.TargetAsset, a.logger)
		if err != nil {
			return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
		}
		return client, nil
	}

	if a.store == nil {
		return nil, errors.New("模拟模式需要数据库存储")
	}

	paper, err := exchange.NewPaper(a.store, a.cfg.Paper.MinOrderSize, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化模拟交易所失败: %w", err)
	}

	seed := make(map[string]decimal.Decimal, len(a.cfg.Paper.Balances))
	for _, bal := range a.cfg.Paper.Balances {
		seed[bal.Asset] = bal.Amount
	}
	if err := paper.Seed(ctx, seed, a.cfg.Paper.ResetOnStart); err != nil {
		return nil, fmt.Errorf("写入模拟余额失败: %w", err)
	}

	a.logger.Info("使用模拟交易所",
		zap.Int("seed_assets", len(seed)),
		zap.Stringer("min_order_size", a.cfg.Paper.MinOrderSize),
	)
	return paper, nil
}
