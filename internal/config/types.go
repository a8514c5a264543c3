package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	// ModeLive 通过 ccxt 连接真实交易所。
	ModeLive = "live"
	// ModePaper 使用 SQLite 账本模拟交易所。
	ModePaper = "paper"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Paper       PaperConfig       `mapstructure:"paper"`
	Liquidation LiquidationConfig `mapstructure:"liquidation"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Mode       string        `mapstructure:"mode"`
	Name       string        `mapstructure:"name"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	APIPass    string        `mapstructure:"api_password"`
	UseSandbox bool          `mapstructure:"use_sandbox"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AssetAmount 表示资产及其数量。
type AssetAmount struct {
	Asset  string          `mapstructure:"asset"`
	Amount decimal.Decimal `mapstructure:"amount"`
}

// PaperConfig 控制模拟交易所。
type PaperConfig struct {
	MinOrderSize decimal.Decimal `mapstructure:"min_order_size"`
	Balances     []AssetAmount   `mapstructure:"balances"`
	ResetOnStart bool            `mapstructure:"reset_on_start"`
}

// LiquidationConfig 描述清算请求。
type LiquidationConfig struct {
	TargetAsset string        `mapstructure:"target_asset"`
	Requests    []AssetAmount `mapstructure:"requests"`
	Concurrency int           `mapstructure:"concurrency"`
}

// RequestMap 将请求列表转换为资产到数量的映射。
func (c LiquidationConfig) RequestMap() map[string]decimal.Decimal {
	requests := make(map[string]decimal.Decimal, len(c.Requests))
	for _, req := range c.Requests {
		requests[req.Asset] = req.Amount
	}
	return requests
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制清算节奏，Interval 为 0 时只执行一次。
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig 控制 Prometheus 指标接口。
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}

	switch c.Exchange.Mode {
	case ModeLive:
		if c.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("exchange.name 不能为空"))
		}
		if c.Exchange.Timeout <= 0 {
			err = multierr.Append(err, errors.New("exchange.timeout 必须大于0"))
		}
	case ModePaper:
		if c.Paper.MinOrderSize.IsNegative() {
			err = multierr.Append(err, errors.New("paper.min_order_size 不能为负"))
		}
		seen := make(map[string]struct{}, len(c.Paper.Balances))
		for i, bal := range c.Paper.Balances {
			if bal.Asset == "" {
				err = multierr.Append(err, fmt.Errorf("paper.balances[%d].asset 不能为空", i))
				continue
			}
			if bal.Amount.IsNegative() {
				err = multierr.Append(err, fmt.Errorf("paper.balances[%d].amount 不能为负", i))
			}
			if _, dup := seen[bal.Asset]; dup {
				err = multierr.Append(err, fmt.Errorf("paper.balances 资产 %s 重复", bal.Asset))
			}
			seen[bal.Asset] = struct{}{}
		}
		if c.Database.Path == "" && !c.Database.InMemory {
			err = multierr.Append(err, errors.New("database.path 不能为空"))
		}
		if c.Database.MaxOpenConns <= 0 {
			err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
		}
		if c.Database.MaxIdleConns < 0 {
			err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
		}
		if c.Database.ConnMaxLifetime < 0 {
			err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("exchange.mode 仅支持 %s 或 %s，当前为 %q", ModeLive, ModePaper, c.Exchange.Mode))
	}

	if c.Liquidation.TargetAsset == "" {
		err = multierr.Append(err, errors.New("liquidation.target_asset 不能为空"))
	}
	if c.Liquidation.Concurrency < 0 {
		err = multierr.Append(err, errors.New("liquidation.concurrency 不能为负"))
	}
	seen := make(map[string]struct{}, len(c.Liquidation.Requests))
	for i, req := range c.Liquidation.Requests {
		if req.Asset == "" {
			err = multierr.Append(err, fmt.Errorf("liquidation.requests[%d].asset 不能为空", i))
			continue
		}
		if _, dup := seen[req.Asset]; dup {
			err = multierr.Append(err, fmt.Errorf("liquidation.requests 资产 %s 重复", req.Asset))
		}
		seen[req.Asset] = struct{}{}
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.Interval < 0 {
		err = multierr.Append(err, errors.New("scheduler.interval 不能为负"))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		err = multierr.Append(err, errors.New("metrics.port 必须位于[1,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// IsPaper 判断是否使用模拟交易所。
func (c ExchangeConfig) IsPaper() bool {
	return c.Mode == ModePaper
}
