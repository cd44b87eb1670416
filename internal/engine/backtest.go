package engine

import (
	"context"
	"fmt"
	"time"

	"athena-engine/internal/ledger"
	"athena-engine/internal/market"
	"athena-engine/internal/service"
	"athena-engine/internal/strategy"

	"go.uber.org/zap"
)

// Backtest 历史数据回放引擎：一次性拉取区间内全部 K 线，
// 按传参模型拆成价格点后同步喂给策略，跑完输出统计报表。
type Backtest struct {
	core
	history market.HistorySource
}

// NewBacktest 创建回测引擎
func NewBacktest(cfg *service.Config, strat strategy.Strategy, history market.HistorySource, logger *zap.Logger) *Backtest {
	return &Backtest{
		core: core{
			cfg:    cfg,
			logger: logger.With(zap.String("engine", "backtest")),
			strat:  strat,
			led:    NewLedger(cfg, logger),
		},
		history: history,
	}
}

// Run 执行回测。正常跑完、爆仓中断、策略 abort 都会输出报表。
func (b *Backtest) Run(ctx context.Context) error {
	start, err := time.Parse(service.TimeLayout, b.cfg.Data.Start)
	if err != nil {
		return fmt.Errorf("parse start time: %w", err)
	}
	end, err := time.Parse(service.TimeLayout, b.cfg.Data.End)
	if err != nil {
		return fmt.Errorf("parse end time: %w", err)
	}

	bars, err := b.history.FetchHistory(ctx, b.cfg.Data.Symbol, b.cfg.Data.Interval, start, end)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	samples := ExpandBars(bars, b.cfg.ParamModel)
	b.logger.Info("Backtest started",
		zap.String("symbol", b.cfg.Data.Symbol),
		zap.String("interval", b.cfg.Data.Interval),
		zap.String("paramModel", string(b.cfg.ParamModel)),
		zap.Int("bars", len(bars)),
		zap.Int("samples", len(samples)))

	started := time.Now()
	var lastPrice float64
	var lastTime time.Time
	processed := 0
	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			b.led.Stop()
			break
		}
		if b.led.State() != ledger.StateRunning {
			break // 爆仓或被停止，剩余数据不再回放
		}

		if err := b.step(ctx, sample.Label, sample.Price, sample.Time); err != nil {
			b.logSummary()
			return fmt.Errorf("backtest aborted: %w", err)
		}
		lastPrice = sample.Price
		lastTime = sample.Time
		processed++
	}

	if lastPrice > 0 {
		b.logSnapshot(lastPrice, lastTime)
	}
	b.logger.Info("Backtest finished",
		zap.Int("samplesProcessed", processed),
		zap.Duration("elapsed", time.Since(started)))
	b.logSummary()
	return nil
}
