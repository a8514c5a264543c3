package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidator/internal/liquidation"
	"liquidator/internal/store"
)

// Paper 是基于 SQLite 账本的模拟交易所，卖出只扣减资产余额。
type Paper struct {
	store        *store.Store
	minOrderSize decimal.Decimal
	logger       *zap.Logger

	mu sync.Mutex
}

var _ liquidation.Exchange = (*Paper)(nil)

// NewPaper 创建模拟交易所并初始化账本表。
func NewPaper(st *store.Store, minOrderSize decimal.Decimal, logger *zap.Logger) (*Paper, error) {
	if st == nil {
		return nil, errors.New("exchange: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Paper{
		store:        st,
		minOrderSize: minOrderSize,
		logger:       logger,
	}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Paper) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS paper_balances (
	asset TEXT PRIMARY KEY,
	amount TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
	if _, err := p.store.DB().Exec(stmt); err != nil {
		return fmt.Errorf("exchange: 初始化模拟账本失败: %w", err)
	}
	return nil
}

// Seed 写入初始余额；reset 为 false 时保留已有余额。
func (p *Paper) Seed(ctx context.Context, balances map[string]decimal.Decimal, reset bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stmt := `INSERT OR IGNORE INTO paper_balances (asset, amount, updated_at) VALUES (?, ?, ?)`
	if reset {
		stmt = `INSERT OR REPLACE INTO paper_balances (asset, amount, updated_at) VALUES (?, ?, ?)`
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return p.store.WithTx(ctx, func(tx *sql.Tx) error {
		for asset, amount := range balances {
			if _, err := tx.ExecContext(ctx, stmt, asset, amount.String(), now); err != nil {
				return fmt.Errorf("exchange: 写入模拟余额 %s 失败: %w", asset, err)
			}
		}
		return nil
	})
}

// GetBalance 返回账本中的资产余额，资产不存在时返回交易所错误。
func (p *Paper) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balance, err := readBalance(ctx, p.store.DB(), asset)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// PlaceMarketSellOrder 扣减资产余额；数量低于最小下单量时返回 false。
func (p *Paper) PlaceMarketSellOrder(ctx context.Context, asset string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() || amount.LessThan(p.minOrderSize) {
		p.logger.Info("模拟订单低于最小下单量，未成交",
			zap.String("asset", asset),
			zap.Stringer("amount", amount),
			zap.Stringer("min_order_size", p.minOrderSize),
		)
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		balance, err := readBalance(ctx, tx, asset)
		if err != nil {
			return err
		}
		if amount.GreaterThan(balance) {
			return liquidation.InsufficientBalance(asset)
		}

		remaining := balance.Sub(amount)
		_, err = tx.ExecContext(ctx,
			`UPDATE paper_balances SET amount = ?, updated_at = ? WHERE asset = ?`,
			remaining.String(), time.Now().UTC().Format(time.RFC3339), asset,
		)
		if err != nil {
			return liquidation.WrapExchangeError(err, fmt.Sprintf("update balance %s", asset))
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	p.logger.Debug("模拟卖单已成交",
		zap.String("asset", asset),
		zap.Stringer("amount", amount),
	)
	return true, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func readBalance(ctx context.Context, q queryer, asset string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT amount FROM paper_balances WHERE asset = ?`, asset).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, liquidation.ExchangeErrorf("asset not found: %s", asset)
	}
	if err != nil {
		return decimal.Zero, liquidation.WrapExchangeError(err, fmt.Sprintf("query balance %s", asset))
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, liquidation.WrapExchangeError(err, fmt.Sprintf("parse balance %s", asset))
	}
	return balance, nil
}
