package engine

import (
	"context"
	"fmt"
	"time"

	"athena-engine/internal/ledger"
	"athena-engine/internal/market"
	"athena-engine/internal/model"
	"athena-engine/internal/service"
	"athena-engine/internal/strategy"

	"go.uber.org/zap"
)

// Simulation 实测引擎：实时行情驱动的纸面交易。
// 信号只改本地账本，不碰交易所；另起一个协程周期输出权益快照。
type Simulation struct {
	core
	history market.HistorySource // 可为 nil，非 nil 时启动前用历史数据预热策略
	price   market.PriceSource
}

// NewSimulation 创建实测引擎
func NewSimulation(cfg *service.Config, strat strategy.Strategy, history market.HistorySource, price market.PriceSource, logger *zap.Logger) *Simulation {
	return &Simulation{
		core: core{
			cfg:    cfg,
			logger: logger.With(zap.String("engine", "simulation")),
			strat:  strat,
			led:    NewLedger(cfg, logger),
		},
		history: history,
		price:   price,
	}
}

// Run 运行实测，直到 ctx 取消或账本进入终态
func (s *Simulation) Run(ctx context.Context) error {
	if err := s.preheat(ctx); err != nil {
		return err
	}

	interval, err := service.ParseIntervalDuration(s.cfg.Data.Interval)
	if err != nil {
		return err
	}

	telemetryCtx, cancelTelemetry := context.WithCancel(ctx)
	defer cancelTelemetry()
	go s.telemetryLoop(telemetryCtx, s.cfg.Telemetry.SimulationInterval, func(ctx context.Context) (model.Ticker, error) {
		return s.price.Latest(ctx, s.cfg.Data.Symbol)
	})

	s.logger.Info("Simulation started",
		zap.String("symbol", s.cfg.Data.Symbol),
		zap.String("interval", s.cfg.Data.Interval))

	started := time.Now()
	ticks := 0
	for {
		if ctx.Err() != nil {
			s.led.Stop()
			break
		}
		if s.led.State() != ledger.StateRunning {
			break
		}

		tick, err := s.price.Latest(ctx, s.cfg.Data.Symbol)
		if err != nil {
			// 取价失败跳过本轮，下一个周期重试
			s.logger.Warn("Price poll failed", zap.Error(err))
			if !sleepCtx(ctx, interval) {
				s.led.Stop()
				break
			}
			continue
		}

		ts := time.UnixMilli(tick.Timestamp)
		if err := s.step(ctx, ts.Format(service.TimeLayout), tick.Price, ts); err != nil {
			cancelTelemetry()
			s.logSummary()
			return fmt.Errorf("simulation aborted: %w", err)
		}
		ticks++

		if !sleepCtx(ctx, interval) {
			s.led.Stop()
			break
		}
	}

	cancelTelemetry()
	s.logger.Info("Simulation finished",
		zap.Int("ticksProcessed", ticks),
		zap.Duration("elapsed", time.Since(started)))
	s.logSummary()
	return nil
}

// preheat 把启动前一段历史喂给策略，让指标窗口在实时行情到来前就绪。
// 未配置时间区间时跳过。预热只驱动策略，不产生任何账本操作。
func (s *Simulation) preheat(ctx context.Context) error {
	if s.history == nil || s.cfg.Data.Start == "" || s.cfg.Data.End == "" {
		return nil
	}
	start, err := time.Parse(service.TimeLayout, s.cfg.Data.Start)
	if err != nil {
		return fmt.Errorf("parse preheat start: %w", err)
	}
	end, err := time.Parse(service.TimeLayout, s.cfg.Data.End)
	if err != nil {
		return fmt.Errorf("parse preheat end: %w", err)
	}

	bars, err := s.history.FetchHistory(ctx, s.cfg.Data.Symbol, s.cfg.Data.Interval, start, end)
	if err != nil {
		return fmt.Errorf("preheat fetch: %w", err)
	}

	for _, bar := range bars {
		label := bar.OpenTime.Format(service.TimeLayout) + " close"
		if _, err := strategy.SafeSignal(s.strat, label, bar.Close); err != nil {
			s.logger.Warn("Strategy error during preheat", zap.Error(err))
		}
	}
	s.logger.Info("Strategy preheated", zap.Int("bars", len(bars)))
	return nil
}
