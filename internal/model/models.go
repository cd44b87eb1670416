package model

import "time"

// Ticker 代表最小粒度的市场数据（一次价格采样）
type Ticker struct {
	Symbol    string  // 所属交易对，例如 "BTCUSDT"
	Timestamp int64   // 毫秒时间戳
	Price     float64 // 价格
}

// KLine 代表一根已完成的 K 线
type KLine struct {
	Symbol    string // 所属交易对
	Interval  string // 周期，例如 "1m", "5m", "1h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  time.Time
	CloseTime time.Time
}

// EngineMode 对应三种运行引擎：回测 / 实测 / 实盘
type EngineMode string

const (
	ModeBacktest   EngineMode = "backtest"
	ModeSimulation EngineMode = "simulation"
	ModeLive       EngineMode = "live"
)

// ExpandModel 回测传参模型：一根 K 线拆成哪些子价格点喂给策略
type ExpandModel string

const (
	ExpandOHLC      ExpandModel = "ohlc"  // 开 -> 高 -> 低 -> 收
	ExpandOLHC      ExpandModel = "olhc"  // 开 -> 低 -> 高 -> 收
	ExpandCloseOnly ExpandModel = "close" // 仅收盘价
)
