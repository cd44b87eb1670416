package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"athena-engine/internal/ledger"
	"athena-engine/internal/market"
	"athena-engine/internal/model"
	"athena-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubHistory 返回预设的 K 线
type stubHistory struct {
	bars []model.KLine
	err  error
}

func (s *stubHistory) FetchHistory(_ context.Context, _, _ string, _, _ time.Time) ([]model.KLine, error) {
	return s.bars, s.err
}

var _ market.HistorySource = (*stubHistory)(nil)

// scriptedStrategy 按预设顺序发信号，耗尽后一直不操作
type scriptedStrategy struct {
	signals []model.Signal
	calls   int
}

func (s *scriptedStrategy) Signal(string, float64) model.Signal {
	s.calls++
	if len(s.signals) == 0 {
		return model.SignalNone
	}
	sig := s.signals[0]
	s.signals = s.signals[1:]
	return sig
}

// panicStrategy 第 n 次调用时 panic
type panicStrategy struct {
	panicAt int
	calls   int
}

func (p *panicStrategy) Signal(string, float64) model.Signal {
	p.calls++
	if p.calls == p.panicAt {
		panic("boom")
	}
	return model.SignalNone
}

func backtestConfig() *service.Config {
	return &service.Config{
		Mode: model.ModeBacktest,
		Data: service.DataConfig{
			Symbol:   "BTCUSDT",
			Interval: "1h",
			Start:    "2024-01-01 00:00:00",
			End:      "2024-01-02 00:00:00",
		},
		Account: service.AccountConfig{InitialMargin: 1000},
		TradeRule: service.TradeRuleConfig{
			FeeRatePercent: 0.05,
			OrderMode:      service.OrderModeFixed,
			FixedMargin:    100,
			Leverage:       10,
		},
		ParamModel:  model.ExpandCloseOnly,
		Liquidation: service.LiquidationConfig{Enabled: true},
		Strategy:    service.StrategyConfig{Name: "scripted", OnError: "continue"},
	}
}

func closeBars(closes ...float64) []model.KLine {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.KLine, len(closes))
	for i, c := range closes {
		bars[i] = model.KLine{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			OpenTime:  open.Add(time.Duration(i) * time.Hour),
			CloseTime: open.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return bars
}

func TestBacktestOpenAndClose(t *testing.T) {
	strat := &scriptedStrategy{signals: []model.Signal{
		model.SignalOpenLong,
		model.SignalNone,
		model.SignalCloseLong,
	}}
	b := NewBacktest(backtestConfig(), strat,
		&stubHistory{bars: closeBars(100, 105, 110)}, zap.NewNop())

	require.NoError(t, b.Run(context.Background()))

	// 开多@100 余额 899.5，平多@110 盈亏 +100，余额 1099
	assert.Equal(t, 1099.0, b.led.Balance())
	assert.Equal(t, 0, b.led.OpenCount())
	require.Len(t, b.led.ClosedTrades(), 1)
	assert.Equal(t, 100.0, b.led.ClosedTrades()[0].Profit)
}

func TestBacktestLiquidationStopsReplayOnBust(t *testing.T) {
	cfg := backtestConfig()
	cfg.TradeRule.FixedMargin = 500
	cfg.TradeRule.FeeRatePercent = 0

	strat := &scriptedStrategy{signals: []model.Signal{model.SignalOpenLong}}
	// 强平价约 9.09，第二根直接打穿导致爆仓，第三根不应再被回放
	b := NewBacktest(cfg, strat,
		&stubHistory{bars: closeBars(100, 5, 200)}, zap.NewNop())

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, ledger.StateHalted, b.led.State())
	require.Len(t, b.led.ClosedTrades(), 1)
	assert.Equal(t, model.ReasonLiquidation, b.led.ClosedTrades()[0].Reason)
	assert.Equal(t, 2, strat.calls)
}

func TestBacktestStrategyPanicContinue(t *testing.T) {
	strat := &panicStrategy{panicAt: 2}
	b := NewBacktest(backtestConfig(), strat,
		&stubHistory{bars: closeBars(100, 105, 110)}, zap.NewNop())

	require.NoError(t, b.Run(context.Background()))
	// 异常视为不操作，剩余数据继续回放
	assert.Equal(t, 3, strat.calls)
	assert.Equal(t, 1000.0, b.led.Balance())
}

func TestBacktestStrategyPanicAbort(t *testing.T) {
	cfg := backtestConfig()
	cfg.Strategy.OnError = "abort"

	strat := &panicStrategy{panicAt: 2}
	b := NewBacktest(cfg, strat,
		&stubHistory{bars: closeBars(100, 105, 110)}, zap.NewNop())

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.Equal(t, 2, strat.calls)
}

func TestBacktestHistoryError(t *testing.T) {
	b := NewBacktest(backtestConfig(), &scriptedStrategy{},
		&stubHistory{err: errors.New("network down")}, zap.NewNop())

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch history")
}

func TestBacktestCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strat := &scriptedStrategy{signals: []model.Signal{model.SignalOpenLong}}
	b := NewBacktest(backtestConfig(), strat,
		&stubHistory{bars: closeBars(100, 105, 110)}, zap.NewNop())

	require.NoError(t, b.Run(ctx))
	assert.Equal(t, ledger.StateStopped, b.led.State())
	assert.Zero(t, strat.calls)
}
