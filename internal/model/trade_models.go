package model

import (
	"fmt"
	"time"
)

// Signal 定义了策略回调的全部输出：开多/开空/平多/平空/不操作
type Signal string

const (
	SignalNone       Signal = "NONE"
	SignalOpenLong   Signal = "OPEN_LONG"
	SignalOpenShort  Signal = "OPEN_SHORT"
	SignalCloseLong  Signal = "CLOSE_LONG"
	SignalCloseShort Signal = "CLOSE_SHORT"
)

// IsOpen 是否为开仓信号
func (s Signal) IsOpen() bool { return s == SignalOpenLong || s == SignalOpenShort }

// IsClose 是否为平仓信号
func (s Signal) IsClose() bool { return s == SignalCloseLong || s == SignalCloseShort }

// Direction 持仓方向
type Direction string

const (
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
)

func (d Direction) String() string { return string(d) }

// OpenDirection 开仓信号对应的方向；非开仓信号返回 ok=false
func (s Signal) OpenDirection() (Direction, bool) {
	switch s {
	case SignalOpenLong:
		return DirLong, true
	case SignalOpenShort:
		return DirShort, true
	}
	return "", false
}

// CloseDirection 平仓信号匹配的持仓方向：平多配 LONG，平空配 SHORT
func (s Signal) CloseDirection() (Direction, bool) {
	switch s {
	case SignalCloseLong:
		return DirLong, true
	case SignalCloseShort:
		return DirShort, true
	}
	return "", false
}

// CloseReason 平仓原因
type CloseReason string

const (
	ReasonSignal      CloseReason = "SIGNAL"      // 策略平仓信号
	ReasonLiquidation CloseReason = "LIQUIDATION" // 触发强平价
)

// Position 一笔未平仓订单。开仓时创建，平仓/强平时整体移入成交记录，期间不可变。
type Position struct {
	Sequence         int64     // 单调递增的订单序列号，永不复用
	Side             Direction // LONG / SHORT
	Symbol           string
	EntryPrice       float64
	EntryTime        time.Time
	Margin           float64 // 本单占用的保证金
	Leverage         float64 // 杠杆倍数 (>=1)
	Notional         float64 // 控制资金 = Margin * Leverage
	EntryFee         float64 // 开仓手续费 = Notional * FeeRate
	LiquidationPrice float64 // 开仓时一次性算好的强平价
}

func (p *Position) String() string {
	return fmt.Sprintf("ORDER #%d [%s %s] entry=%.4f margin=%.4f notional=%.2f liq=%.4f",
		p.Sequence, p.Side, p.Symbol, p.EntryPrice, p.Margin, p.Notional, p.LiquidationPrice)
}

// UnrealizedPnL 按当前价计算本单浮动盈亏（与平仓公式一致）
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == DirLong {
		return p.Notional * (price - p.EntryPrice) / p.EntryPrice
	}
	return p.Notional * (p.EntryPrice - price) / p.EntryPrice
}

// ClosedTrade 一笔完整的开平仓记录，只追加，永不修改
type ClosedTrade struct {
	Sequence   int64
	Side       Direction
	Symbol     string
	Reason     CloseReason
	Profit     float64 // 已实现盈亏（不含手续费）
	Margin     float64
	Notional   float64
	OpenPrice  float64
	ClosePrice float64
	TotalFee   float64 // 开仓 + 平仓手续费
	OpenTime   time.Time
	CloseTime  time.Time
}
