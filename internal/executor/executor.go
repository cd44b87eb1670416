// Package executor 真实下单通道。实盘引擎先把信号镜像到交易所，
// 下单成功后才改动本地账本；下单失败只记日志，账本保持不动。
package executor

import (
	"context"

	"athena-engine/internal/model"
)

// Fill 一次市价单的成交结果
type Fill struct {
	OrderID  int64
	Symbol   string
	Side     model.Direction
	Quantity float64
	Closing  bool // true 表示平仓方向的单
}

// ExchangePosition 交易所侧的持仓快照，用于实盘对账日志
type ExchangePosition struct {
	Symbol           string
	Side             model.Direction
	PositionAmt      float64
	EntryPrice       float64
	UnrealizedProfit float64
	LiquidationPrice float64
}

// Executor 交易所下单与查询契约
type Executor interface {
	// PlaceMarketOrder 按方向市价开/平仓；closing 为 true 时是平掉 side 方向的仓位
	PlaceMarketOrder(ctx context.Context, side model.Direction, closing bool, quantity float64) (Fill, error)
	// Positions 查询指定交易对的当前持仓
	Positions(ctx context.Context, symbol string) ([]ExchangePosition, error)
	// Balance 查询 USDT 可用余额
	Balance(ctx context.Context) (float64, error)
	// SetLeverage 设置交易对杠杆，应在任何下单之前调用一次
	SetLeverage(ctx context.Context, leverage int) error
}
