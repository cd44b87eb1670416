package ledger

import (
	"time"

	"athena-engine/internal/model"
)

// OpenOrderView 未平仓订单的只读视图，带当前价下的浮动盈亏
type OpenOrderView struct {
	Sequence         int64
	Side             model.Direction
	Symbol           string
	Margin           float64
	Notional         float64
	OpenPrice        float64
	LiquidationPrice float64
	CurrentPrice     float64
	UnrealizedPnL    float64
	EntryTime        time.Time
}

// Snapshot 账本的完整只读快照，交给外部渲染（日志、表格等），核心不做任何展示
type Snapshot struct {
	State          State
	Symbol         string
	InitialBalance float64
	Balance        float64
	UnrealizedPnL  float64
	Equity         float64
	WatermarkMax   float64
	WatermarkMin   float64
	OpenOrders     []OpenOrderView
	ClosedTrades   []model.ClosedTrade
	TakenAt        time.Time
}

// Snapshot 以给定的当前价生成快照。整个快照在一次持锁内完成，
// 不会观察到半途的开平仓。
func (l *Ledger) Snapshot(price float64, ts time.Time) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		State:          l.state,
		Symbol:         l.cfg.Symbol,
		InitialBalance: l.initialBalance,
		Balance:        l.balance,
		WatermarkMax:   l.watermarkMax,
		WatermarkMin:   l.watermarkMin,
		TakenAt:        ts,
	}

	for _, pos := range l.open {
		upl := pos.UnrealizedPnL(price)
		snap.UnrealizedPnL += upl
		snap.OpenOrders = append(snap.OpenOrders, OpenOrderView{
			Sequence:         pos.Sequence,
			Side:             pos.Side,
			Symbol:           pos.Symbol,
			Margin:           pos.Margin,
			Notional:         pos.Notional,
			OpenPrice:        pos.EntryPrice,
			LiquidationPrice: pos.LiquidationPrice,
			CurrentPrice:     price,
			UnrealizedPnL:    upl,
			EntryTime:        pos.EntryTime,
		})
	}
	snap.Equity = snap.Balance + snap.UnrealizedPnL

	snap.ClosedTrades = make([]model.ClosedTrade, len(l.closed))
	copy(snap.ClosedTrades, l.closed)
	return snap
}
