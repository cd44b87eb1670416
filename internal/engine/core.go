// Package engine 把行情、策略、账本串成三种运行模式：
// 回测（历史数据同步回放）、实测（实时行情纸面交易）、实盘（信号镜像到交易所）。
// 三种模式共用同一个账本实现和同一条信号处理路径。
package engine

import (
	"context"
	"time"

	"athena-engine/internal/ledger"
	"athena-engine/internal/model"
	"athena-engine/internal/service"
	"athena-engine/internal/stats"
	"athena-engine/internal/strategy"

	"go.uber.org/zap"
)

// 循环内部出错后的固定退避时间
const errorBackoff = 5 * time.Second

// mirrorFunc 在账本变动之前把信号镜像到外部（实盘下单）。
// 返回错误表示镜像失败，本次信号作废，账本保持不动。
type mirrorFunc func(ctx context.Context, sig model.Signal, price float64) error

// core 三种引擎共享的信号处理管线
type core struct {
	cfg    *service.Config
	logger *zap.Logger
	strat  strategy.Strategy
	led    *ledger.Ledger
	mirror mirrorFunc // 仅实盘模式非空
}

// NewLedger 按配置创建账本，三种引擎的入口都从这里拿
func NewLedger(cfg *service.Config, logger *zap.Logger) *ledger.Ledger {
	return ledger.New(ledger.Config{
		Symbol:             cfg.Data.Symbol,
		InitialMargin:      cfg.Account.InitialMargin,
		OrderMode:          cfg.TradeRule.OrderMode,
		FixedMargin:        cfg.TradeRule.FixedMargin,
		PercentMargin:      cfg.TradeRule.PercentMargin,
		Leverage:           cfg.TradeRule.Leverage,
		FeeRate:            cfg.FeeRate(),
		LiquidationEnabled: cfg.Liquidation.Enabled,
	}, logger)
}

// step 处理一个价格点：策略 -> (镜像) -> 账本 -> 强平检查。
// 返回错误只有一种情况：策略异常且错误策略是 abort。
func (c *core) step(ctx context.Context, label string, price float64, ts time.Time) error {
	sig, err := strategy.SafeSignal(c.strat, label, price)
	if err != nil {
		c.logger.Error("Strategy error",
			zap.String("label", label),
			zap.Float64("price", price),
			zap.Error(err))
		if c.cfg.Strategy.OnError == "abort" {
			return err
		}
		sig = model.SignalNone
	}

	if sig != model.SignalNone && c.mirror != nil {
		if err := c.mirror(ctx, sig, price); err != nil {
			// 交易所下单失败，本地账本不动，等下一个信号
			c.logger.Error("Exchange mirror failed, signal dropped",
				zap.String("signal", string(sig)),
				zap.Float64("price", price),
				zap.Error(err))
			sig = model.SignalNone
		}
	}

	if sig != model.SignalNone {
		c.led.Apply(sig, price, ts)
	}
	c.led.CheckLiquidation(price, ts)
	return nil
}

// telemetryLoop 周期性输出账本快照，直到 ctx 取消或账本进入终态。
// 取价失败按固定退避重试，不中断运行。
func (c *core) telemetryLoop(ctx context.Context, interval time.Duration, latest func(context.Context) (model.Ticker, error)) {
	for {
		if !sleepCtx(ctx, interval) {
			return
		}
		if c.led.State() != ledger.StateRunning {
			return
		}

		tick, err := latest(ctx)
		if err != nil {
			c.logger.Warn("Telemetry price fetch failed", zap.Error(err))
			if !sleepCtx(ctx, errorBackoff) {
				return
			}
			continue
		}
		c.logSnapshot(tick.Price, time.UnixMilli(tick.Timestamp))
	}
}

// logSnapshot 输出一次完整的账户状态
func (c *core) logSnapshot(price float64, ts time.Time) {
	snap := c.led.Snapshot(price, ts)
	c.logger.Info("Account snapshot",
		zap.String("state", string(snap.State)),
		zap.Float64("price", price),
		zap.Float64("balance", snap.Balance),
		zap.Float64("unrealizedPnL", snap.UnrealizedPnL),
		zap.Float64("equity", snap.Equity),
		zap.Int("openOrders", len(snap.OpenOrders)),
		zap.Int("closedTrades", len(snap.ClosedTrades)))
	for _, order := range snap.OpenOrders {
		c.logger.Info("Open order",
			zap.Int64("sequence", order.Sequence),
			zap.String("side", order.Side.String()),
			zap.Float64("openPrice", order.OpenPrice),
			zap.Float64("margin", order.Margin),
			zap.Float64("liquidationPrice", order.LiquidationPrice),
			zap.Float64("unrealizedPnL", order.UnrealizedPnL))
	}
}

// logSummary 运行结束后输出统计报表
func (c *core) logSummary() {
	_, watermarkMin := c.led.Watermarks()
	summary := stats.Summarize(c.led.InitialBalance(), c.led.Balance(), watermarkMin, c.led.ClosedTrades())
	c.logger.Info("Run summary",
		zap.String("state", string(c.led.State())),
		zap.Float64("initialBalance", summary.InitialBalance),
		zap.Float64("finalBalance", summary.FinalBalance),
		zap.Float64("returnRatePercent", summary.ReturnRatePercent),
		zap.Float64("maxDrawdownPercent", summary.MaxDrawdownPercent),
		zap.Int("tradeCount", summary.TradeCount),
		zap.Float64("winRatePercent", summary.WinRatePercent),
		zap.Float64("maxProfit", summary.MaxProfit),
		zap.Float64("minProfit", summary.MinProfit),
		zap.Float64("stdDev", summary.StdDev),
		zap.Float64("sharpeRatio", summary.SharpeRatio))
}

// sleepCtx 可被 ctx 打断的 sleep；返回 false 表示 ctx 已取消
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
