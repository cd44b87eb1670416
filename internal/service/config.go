// internal/service/config.go
package service

import (
	"fmt"
	"log"
	"time"

	"athena-engine/internal/model"

	"github.com/spf13/viper"
)

// TimeLayout 配置文件与日志里统一使用的时间格式
const TimeLayout = "2006-01-02 15:04:05"

// OrderMode 下单保证金模式
const (
	OrderModeFixed   = "fixed"   // 固定保证金模式
	OrderModePercent = "percent" // 百分比保证金模式（滚仓）
)

type Config struct {
	Mode        model.EngineMode  `mapstructure:"Mode"`
	Data        DataConfig        `mapstructure:"Data"`
	Account     AccountConfig     `mapstructure:"Account"`
	TradeRule   TradeRuleConfig   `mapstructure:"TradeRule"`
	ParamModel  model.ExpandModel `mapstructure:"ParamModel"`
	Liquidation LiquidationConfig `mapstructure:"Liquidation"`
	Strategy    StrategyConfig    `mapstructure:"Strategy"`
	Exchange    ExchangeConfig    `mapstructure:"Exchange"`
	Telemetry   TelemetryConfig   `mapstructure:"Telemetry"`
}

// DataConfig 数据设置：交易对、周期、回测时间范围
type DataConfig struct {
	Symbol   string
	Interval string
	Start    string // 回测/预热区间起点，格式 TimeLayout
	End      string
}

// AccountConfig 账户设置
type AccountConfig struct {
	InitialMargin float64 // 初始保证金金额
}

// TradeRuleConfig 交易规则设置
type TradeRuleConfig struct {
	FeeRatePercent float64 // 手续费率(%)，例如 0.05 表示 0.05%
	OrderMode      string  // fixed / percent
	FixedMargin    float64 // 固定模式：每单保证金金额
	PercentMargin  float64 // 百分比模式：每单占当前余额的百分比(%)
	Leverage       float64 // 杠杆倍数
}

type LiquidationConfig struct {
	Enabled bool // 是否启用强平机制
}

// StrategyConfig 策略设置；策略通过注册名选择，不再动态加载代码
type StrategyConfig struct {
	Name      string
	OnError   string // continue: 策略异常视为不操作; abort: 回测直接终止
	Bollinger BollingerConfig
}

type BollingerConfig struct {
	Window        int
	StdMultiplier float64
}

// ExchangeConfig 交易所连接信息（实测只读行情，实盘需要 API Key）
type ExchangeConfig struct {
	RESTURL      string
	WSURL        string
	APIKey       string
	SecretKey    string
	UseWebsocket bool // 实测/实盘行情走 websocket 推送而不是 REST 轮询
}

// TelemetryConfig 权益刷新周期
type TelemetryConfig struct {
	SimulationInterval time.Duration
	LiveInterval       time.Duration
}

// GlobalConfig 存储加载后的全局配置
var GlobalConfig Config

// LoadConfig 读取并解析配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("Config file not found: %s", err)
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode config into struct: %s", err)
	}

	applyDefaults(&GlobalConfig)
	return &GlobalConfig
}

func applyDefaults(cfg *Config) {
	if cfg.ParamModel == "" {
		cfg.ParamModel = model.ExpandOHLC
	}
	if cfg.TradeRule.OrderMode == "" {
		cfg.TradeRule.OrderMode = OrderModeFixed
	}
	if cfg.Strategy.OnError == "" {
		cfg.Strategy.OnError = "continue"
	}
	if cfg.Strategy.Bollinger.Window == 0 {
		cfg.Strategy.Bollinger.Window = 20
	}
	if cfg.Strategy.Bollinger.StdMultiplier == 0 {
		cfg.Strategy.Bollinger.StdMultiplier = 2
	}
	if cfg.Exchange.RESTURL == "" {
		cfg.Exchange.RESTURL = "https://fapi.binance.com"
	}
	if cfg.Exchange.WSURL == "" {
		cfg.Exchange.WSURL = "wss://fstream.binance.com/ws"
	}
	if cfg.Telemetry.SimulationInterval == 0 {
		cfg.Telemetry.SimulationInterval = 10 * time.Second
	}
	if cfg.Telemetry.LiveInterval == 0 {
		cfg.Telemetry.LiveInterval = 30 * time.Second
	}
}

// Validate 在任何引擎启动前做一次完整校验：配置错误必须在产生任何状态之前被拒绝
func (c *Config) Validate() error {
	switch c.Mode {
	case model.ModeBacktest, model.ModeSimulation, model.ModeLive:
	default:
		return fmt.Errorf("unknown engine mode: %q", c.Mode)
	}
	if c.Data.Symbol == "" {
		return fmt.Errorf("data symbol is required")
	}
	if _, err := ParseIntervalDuration(c.Data.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if c.Mode == model.ModeBacktest {
		start, err := time.Parse(TimeLayout, c.Data.Start)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		end, err := time.Parse(TimeLayout, c.Data.End)
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
		if !start.Before(end) {
			return fmt.Errorf("start time must be before end time")
		}
	}
	if c.Account.InitialMargin <= 0 {
		return fmt.Errorf("initial margin must be positive")
	}
	if c.TradeRule.Leverage < 1 {
		return fmt.Errorf("leverage must be >= 1")
	}
	if c.TradeRule.FeeRatePercent < 0 {
		return fmt.Errorf("fee rate must not be negative")
	}
	switch c.TradeRule.OrderMode {
	case OrderModeFixed:
		if c.TradeRule.FixedMargin <= 0 {
			return fmt.Errorf("fixed margin must be positive")
		}
	case OrderModePercent:
		if c.TradeRule.PercentMargin <= 0 || c.TradeRule.PercentMargin > 100 {
			return fmt.Errorf("percent margin must be in (0, 100]")
		}
	default:
		return fmt.Errorf("unknown order mode: %q", c.TradeRule.OrderMode)
	}
	switch c.ParamModel {
	case model.ExpandOHLC, model.ExpandOLHC, model.ExpandCloseOnly:
	default:
		return fmt.Errorf("unknown param model: %q", c.ParamModel)
	}
	switch c.Strategy.OnError {
	case "continue", "abort":
	default:
		return fmt.Errorf("strategy OnError must be continue or abort")
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if c.Mode == model.ModeLive && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		return fmt.Errorf("live mode requires API key and secret")
	}
	return nil
}

// FeeRate 把百分比形式的手续费率换算成小数，例如 0.05% -> 0.0005
func (c *Config) FeeRate() float64 {
	return c.TradeRule.FeeRatePercent / 100
}
