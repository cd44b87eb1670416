package ledger

import (
	"testing"
	"time"

	"athena-engine/internal/model"
	"athena-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		Symbol:             "BTCUSDT",
		InitialMargin:      1000,
		OrderMode:          service.OrderModeFixed,
		FixedMargin:        100,
		Leverage:           10,
		FeeRate:            0.0005, // 0.05%
		LiquidationEnabled: true,
	}
}

func newTestLedger(t *testing.T, cfg Config) *Ledger {
	t.Helper()
	return New(cfg, zap.NewNop())
}

var ts = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func TestOpenLong(t *testing.T) {
	l := newTestLedger(t, testConfig())

	pos, ok := l.Open(model.DirLong, 100, ts)
	require.True(t, ok)

	// 名义资金 100*10=1000，开仓手续费 1000*0.0005=0.5
	assert.Equal(t, int64(1), pos.Sequence)
	assert.Equal(t, 100.0, pos.Margin)
	assert.Equal(t, 1000.0, pos.Notional)
	assert.Equal(t, 0.5, pos.EntryFee)
	assert.InDelta(t, 9.0909, pos.LiquidationPrice, 0.0001)
	assert.Equal(t, 899.5, l.Balance())
	assert.Equal(t, 1, l.OpenCount())
	assert.Equal(t, StateRunning, l.State())
}

func TestOpenShortLiquidationPrice(t *testing.T) {
	l := newTestLedger(t, testConfig())

	pos, ok := l.Open(model.DirShort, 100, ts)
	require.True(t, ok)
	// 空头强平价在开仓价上方
	assert.InDelta(t, 190.9091, pos.LiquidationPrice, 0.0001)
}

func TestCloseLongWithProfit(t *testing.T) {
	l := newTestLedger(t, testConfig())
	_, ok := l.Open(model.DirLong, 100, ts)
	require.True(t, ok)

	trade, ok := l.Close(model.SignalCloseLong, 110, ts.Add(time.Hour))
	require.True(t, ok)

	// 盈亏 1000*(110-100)/100=100，平仓手续费按开仓名义资金收 0.5
	assert.Equal(t, 100.0, trade.Profit)
	assert.Equal(t, 1.0, trade.TotalFee)
	assert.Equal(t, model.ReasonSignal, trade.Reason)
	assert.Equal(t, 1099.0, l.Balance())
	assert.Equal(t, 0, l.OpenCount())
}

func TestCloseShortWithProfit(t *testing.T) {
	l := newTestLedger(t, testConfig())
	_, ok := l.Open(model.DirShort, 100, ts)
	require.True(t, ok)

	trade, ok := l.Close(model.SignalCloseShort, 90, ts.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 100.0, trade.Profit)
	assert.Equal(t, 1099.0, l.Balance())
}

func TestPercentMarginFollowsBalance(t *testing.T) {
	cfg := testConfig()
	cfg.OrderMode = service.OrderModePercent
	cfg.PercentMargin = 10
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)

	pos1, ok := l.Open(model.DirLong, 100, ts)
	require.True(t, ok)
	assert.Equal(t, 100.0, pos1.Margin) // 1000 的 10%
	assert.Equal(t, 900.0, l.Balance())

	pos2, ok := l.Open(model.DirLong, 100, ts)
	require.True(t, ok)
	assert.Equal(t, 90.0, pos2.Margin) // 900 的 10%
}

func TestInsufficientMarginSkipsOpen(t *testing.T) {
	cfg := testConfig()
	cfg.FixedMargin = 2000
	l := newTestLedger(t, cfg)

	_, ok := l.Open(model.DirLong, 100, ts)
	assert.False(t, ok)
	assert.Equal(t, 1000.0, l.Balance())
	assert.Equal(t, StateRunning, l.State())
}

func TestCloseWithoutPositionIsNoop(t *testing.T) {
	l := newTestLedger(t, testConfig())

	_, ok := l.Close(model.SignalCloseLong, 100, ts)
	assert.False(t, ok)
	assert.Equal(t, 1000.0, l.Balance())

	// 方向不匹配同样是 no-op
	_, ok = l.Open(model.DirShort, 100, ts)
	require.True(t, ok)
	_, ok = l.Close(model.SignalCloseLong, 100, ts)
	assert.False(t, ok)
	assert.Equal(t, 1, l.OpenCount())
}

func TestCloseMatchesOldestSameSide(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)

	l.Open(model.DirLong, 100, ts)  // #1
	l.Open(model.DirShort, 100, ts) // #2
	l.Open(model.DirLong, 200, ts)  // #3

	trade, ok := l.Close(model.SignalCloseLong, 100, ts)
	require.True(t, ok)
	assert.Equal(t, int64(1), trade.Sequence)

	trade, ok = l.Close(model.SignalCloseLong, 200, ts)
	require.True(t, ok)
	assert.Equal(t, int64(3), trade.Sequence)
}

func TestSequenceNeverReused(t *testing.T) {
	l := newTestLedger(t, testConfig())

	pos1, _ := l.Open(model.DirLong, 100, ts)
	l.Close(model.SignalCloseLong, 100, ts)
	pos2, _ := l.Open(model.DirLong, 100, ts)

	assert.Equal(t, int64(1), pos1.Sequence)
	assert.Equal(t, int64(2), pos2.Sequence)
}

func TestLiquidationForcesClose(t *testing.T) {
	l := newTestLedger(t, testConfig())
	pos, ok := l.Open(model.DirLong, 100, ts)
	require.True(t, ok)
	require.InDelta(t, 9.0909, pos.LiquidationPrice, 0.0001)

	// 未触达强平价时不动
	assert.Empty(t, l.CheckLiquidation(50, ts))
	assert.Equal(t, 1, l.OpenCount())

	liquidated := l.CheckLiquidation(9, ts.Add(time.Hour))
	require.Len(t, liquidated, 1)
	assert.Equal(t, model.ReasonLiquidation, liquidated[0].Reason)
	// 盈亏 1000*(9-100)/100=-910，余额 899.5+100-910-0.5=89
	assert.Equal(t, -910.0, liquidated[0].Profit)
	assert.Equal(t, 89.0, l.Balance())
	assert.Equal(t, 0, l.OpenCount())
	assert.Equal(t, StateRunning, l.State())
}

func TestLiquidationDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.LiquidationEnabled = false
	l := newTestLedger(t, cfg)
	l.Open(model.DirLong, 100, ts)

	assert.Empty(t, l.CheckLiquidation(1, ts))
	assert.Equal(t, 1, l.OpenCount())
}

func TestShortLiquidation(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)
	pos, _ := l.Open(model.DirShort, 100, ts)
	require.InDelta(t, 190.9091, pos.LiquidationPrice, 0.0001)

	liquidated := l.CheckLiquidation(191, ts)
	require.Len(t, liquidated, 1)
	assert.Equal(t, model.ReasonLiquidation, liquidated[0].Reason)
}

func TestBustHaltsLedger(t *testing.T) {
	cfg := testConfig()
	cfg.FixedMargin = 500
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)

	_, ok := l.Open(model.DirLong, 100, ts)
	require.True(t, ok)
	require.Equal(t, 500.0, l.Balance())

	// 名义资金 5000，价格打到 5：盈亏 5000*(5-100)/100=-4750，余额 500+500-4750=-3750
	liquidated := l.CheckLiquidation(5, ts)
	require.Len(t, liquidated, 1)
	assert.Equal(t, -3750.0, l.Balance())
	assert.Equal(t, StateHalted, l.State())
	assert.True(t, l.Halted())

	// 终态后一切操作拒绝
	_, ok = l.Open(model.DirLong, 100, ts)
	assert.False(t, ok)
	_, ok = l.Close(model.SignalCloseLong, 100, ts)
	assert.False(t, ok)
	assert.False(t, l.Apply(model.SignalOpenLong, 100, ts))

	// Stop 不能把 halted 变成 stopped
	l.Stop()
	assert.Equal(t, StateHalted, l.State())
}

func TestStopIsTerminal(t *testing.T) {
	l := newTestLedger(t, testConfig())
	l.Stop()
	assert.Equal(t, StateStopped, l.State())

	_, ok := l.Open(model.DirLong, 100, ts)
	assert.False(t, ok)
}

func TestBalanceRoundedTo4Decimals(t *testing.T) {
	cfg := testConfig()
	cfg.FixedMargin = 33.333333
	l := newTestLedger(t, cfg)

	l.Open(model.DirLong, 100, ts)
	balance := l.Balance()
	assert.Equal(t, balance, float64(int64(balance*1e4))/1e4)
}

func TestWatermarks(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)

	l.Open(model.DirLong, 100, ts) // 余额 900
	maxW, minW := l.Watermarks()
	assert.Equal(t, 1000.0, maxW)
	assert.Equal(t, 900.0, minW)

	l.Close(model.SignalCloseLong, 150, ts) // 盈亏 +500，余额 1500
	maxW, minW = l.Watermarks()
	assert.Equal(t, 1500.0, maxW)
	assert.Equal(t, 900.0, minW)
}

func TestUnrealizedPnLAndEquity(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)

	l.Open(model.DirLong, 100, ts)
	l.Open(model.DirShort, 100, ts)

	// 多头 +100，空头 -100，净浮盈 0
	assert.InDelta(t, 0, l.UnrealizedPnL(110), 1e-9)
	assert.InDelta(t, l.Balance(), l.Equity(110), 1e-9)
}

func TestApplyDispatch(t *testing.T) {
	l := newTestLedger(t, testConfig())

	assert.True(t, l.Apply(model.SignalOpenLong, 100, ts))
	assert.True(t, l.Apply(model.SignalCloseLong, 100, ts))
	assert.False(t, l.Apply(model.SignalCloseShort, 100, ts))
	assert.False(t, l.Apply(model.SignalNone, 100, ts))
}

func TestSnapshotConsistency(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0
	l := newTestLedger(t, cfg)

	l.Open(model.DirLong, 100, ts)
	l.Close(model.SignalCloseLong, 110, ts)
	l.Open(model.DirShort, 100, ts)

	snap := l.Snapshot(90, ts)
	assert.Equal(t, StateRunning, snap.State)
	require.Len(t, snap.OpenOrders, 1)
	require.Len(t, snap.ClosedTrades, 1)
	assert.Equal(t, model.DirShort, snap.OpenOrders[0].Side)
	assert.InDelta(t, 100, snap.OpenOrders[0].UnrealizedPnL, 1e-9) // 1000*(100-90)/100
	assert.InDelta(t, snap.Balance+snap.UnrealizedPnL, snap.Equity, 1e-9)
}

func TestFirstOpen(t *testing.T) {
	l := newTestLedger(t, testConfig())

	_, found := l.FirstOpen(model.DirLong)
	assert.False(t, found)

	l.Open(model.DirShort, 100, ts)
	l.Open(model.DirLong, 200, ts)
	l.Open(model.DirLong, 300, ts)

	pos, found := l.FirstOpen(model.DirLong)
	require.True(t, found)
	assert.Equal(t, 200.0, pos.EntryPrice)
}
