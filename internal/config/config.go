package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "liquidator"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Exchange.Mode = strings.ToLower(strings.TrimSpace(cfg.Exchange.Mode))
	cfg.Exchange.Name = strings.ToLower(strings.TrimSpace(cfg.Exchange.Name))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.mode", ModePaper)
	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.timeout", "10s")

	v.SetDefault("paper.min_order_size", "0")
	v.SetDefault("paper.reset_on_start", false)

	v.SetDefault("liquidation.target_asset", "USDT")
	v.SetDefault("liquidation.concurrency", 4)

	v.SetDefault("database.path", "data/liquidator.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.interval", "0s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9102)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// stringToDecimalHookFunc 将字符串或数字转换为精确的 decimal.Decimal。
// YAML 中的浮点数按最短十进制表示解析，建议数量使用字符串书写。
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				return decimal.Zero, nil
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("无法解析数量 %q: %w", v, err)
			}
			return d, nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case uint64:
			return decimal.NewFromUint64(v), nil
		case float64:
			return decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
		case float32:
			return decimal.NewFromString(strconv.FormatFloat(float64(v), 'f', -1, 32))
		case decimal.Decimal:
			return v, nil
		default:
			return data, nil
		}
	}
}
