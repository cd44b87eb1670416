package engine

import (
	"context"
	"fmt"
	"time"

	"athena-engine/internal/executor"
	"athena-engine/internal/ledger"
	"athena-engine/internal/market"
	"athena-engine/internal/model"
	"athena-engine/internal/service"
	"athena-engine/internal/strategy"

	"go.uber.org/zap"
)

// Live 实盘引擎：在实测引擎的基础上，每个信号先发到交易所成交，
// 成交确认后才写本地账本。下单失败的信号整个作废，本地和交易所保持一致。
type Live struct {
	core
	history market.HistorySource
	price   market.PriceSource
	exec    executor.Executor
}

// NewLive 创建实盘引擎
func NewLive(cfg *service.Config, strat strategy.Strategy, history market.HistorySource, price market.PriceSource, exec executor.Executor, logger *zap.Logger) *Live {
	l := &Live{
		core: core{
			cfg:    cfg,
			logger: logger.With(zap.String("engine", "live")),
			strat:  strat,
			led:    NewLedger(cfg, logger),
		},
		history: history,
		price:   price,
		exec:    exec,
	}
	l.mirror = l.mirrorSignal
	return l
}

// Run 运行实盘，直到 ctx 取消或账本进入终态
func (l *Live) Run(ctx context.Context) error {
	if err := l.exec.SetLeverage(ctx, int(l.cfg.TradeRule.Leverage)); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}

	if err := l.preheat(ctx); err != nil {
		return err
	}

	interval, err := service.ParseIntervalDuration(l.cfg.Data.Interval)
	if err != nil {
		return err
	}

	telemetryCtx, cancelTelemetry := context.WithCancel(ctx)
	defer cancelTelemetry()
	go l.liveTelemetry(telemetryCtx)

	l.logger.Info("Live trading started",
		zap.String("symbol", l.cfg.Data.Symbol),
		zap.String("interval", l.cfg.Data.Interval),
		zap.Float64("leverage", l.cfg.TradeRule.Leverage))

	started := time.Now()
	ticks := 0
	for {
		if ctx.Err() != nil {
			l.led.Stop()
			break
		}
		if l.led.State() != ledger.StateRunning {
			break
		}

		tick, err := l.price.Latest(ctx, l.cfg.Data.Symbol)
		if err != nil {
			l.logger.Warn("Price poll failed", zap.Error(err))
			if !sleepCtx(ctx, interval) {
				l.led.Stop()
				break
			}
			continue
		}

		ts := time.UnixMilli(tick.Timestamp)
		if err := l.step(ctx, ts.Format(service.TimeLayout), tick.Price, ts); err != nil {
			cancelTelemetry()
			l.logSummary()
			return fmt.Errorf("live trading aborted: %w", err)
		}
		ticks++

		if !sleepCtx(ctx, interval) {
			l.led.Stop()
			break
		}
	}

	cancelTelemetry()
	l.logger.Info("Live trading finished",
		zap.Int("ticksProcessed", ticks),
		zap.Duration("elapsed", time.Since(started)))
	l.logSummary()
	return nil
}

// mirrorSignal 把信号转成交易所市价单。开仓数量按本地账本的保证金规则计算，
// 平仓数量取本地将要被平掉的那笔持仓。
func (l *Live) mirrorSignal(ctx context.Context, sig model.Signal, price float64) error {
	if price <= 0 {
		return fmt.Errorf("invalid price %v", price)
	}

	if dir, ok := sig.OpenDirection(); ok {
		margin := l.cfg.TradeRule.FixedMargin
		if l.cfg.TradeRule.OrderMode == service.OrderModePercent {
			margin = l.led.Balance() * l.cfg.TradeRule.PercentMargin / 100
		}
		if margin <= 0 || l.led.Balance() < margin {
			// 本地保证金不足，账本侧同样会跳过，不必下单
			return nil
		}
		quantity := margin * l.cfg.TradeRule.Leverage / price
		_, err := l.exec.PlaceMarketOrder(ctx, dir, false, quantity)
		return err
	}

	if dir, ok := sig.CloseDirection(); ok {
		pos, found := l.led.FirstOpen(dir)
		if !found {
			return nil // 无仓可平，账本侧会记 no-op
		}
		quantity := pos.Notional / pos.EntryPrice
		_, err := l.exec.PlaceMarketOrder(ctx, dir, true, quantity)
		return err
	}
	return nil
}

// liveTelemetry 周期输出本地账本快照，并附带交易所侧的持仓和余额做对账
func (l *Live) liveTelemetry(ctx context.Context) {
	for {
		if !sleepCtx(ctx, l.cfg.Telemetry.LiveInterval) {
			return
		}
		if l.led.State() != ledger.StateRunning {
			return
		}

		tick, err := l.price.Latest(ctx, l.cfg.Data.Symbol)
		if err != nil {
			l.logger.Warn("Telemetry price fetch failed", zap.Error(err))
			if !sleepCtx(ctx, errorBackoff) {
				return
			}
			continue
		}
		l.logSnapshot(tick.Price, time.UnixMilli(tick.Timestamp))

		positions, err := l.exec.Positions(ctx, l.cfg.Data.Symbol)
		if err != nil {
			l.logger.Warn("Exchange position query failed", zap.Error(err))
			continue
		}
		for _, pos := range positions {
			l.logger.Info("Exchange position",
				zap.String("side", pos.Side.String()),
				zap.Float64("amount", pos.PositionAmt),
				zap.Float64("entryPrice", pos.EntryPrice),
				zap.Float64("unrealizedProfit", pos.UnrealizedProfit),
				zap.Float64("liquidationPrice", pos.LiquidationPrice))
		}
		balance, err := l.exec.Balance(ctx)
		if err != nil {
			l.logger.Warn("Exchange balance query failed", zap.Error(err))
			continue
		}
		l.logger.Info("Exchange balance",
			zap.Float64("available", balance),
			zap.Float64("local", l.led.Balance()))
	}
}

// preheat 与实测引擎相同的策略预热
func (l *Live) preheat(ctx context.Context) error {
	if l.history == nil || l.cfg.Data.Start == "" || l.cfg.Data.End == "" {
		return nil
	}
	start, err := time.Parse(service.TimeLayout, l.cfg.Data.Start)
	if err != nil {
		return fmt.Errorf("parse preheat start: %w", err)
	}
	end, err := time.Parse(service.TimeLayout, l.cfg.Data.End)
	if err != nil {
		return fmt.Errorf("parse preheat end: %w", err)
	}

	bars, err := l.history.FetchHistory(ctx, l.cfg.Data.Symbol, l.cfg.Data.Interval, start, end)
	if err != nil {
		return fmt.Errorf("preheat fetch: %w", err)
	}
	for _, bar := range bars {
		label := bar.OpenTime.Format(service.TimeLayout) + " close"
		if _, err := strategy.SafeSignal(l.strat, label, bar.Close); err != nil {
			l.logger.Warn("Strategy error during preheat", zap.Error(err))
		}
	}
	l.logger.Info("Strategy preheated", zap.Int("bars", len(bars)))
	return nil
}
