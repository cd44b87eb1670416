package ledger

import (
	"math"
	"sync"
	"time"

	"athena-engine/internal/model"
	"athena-engine/internal/service"

	"go.uber.org/zap"
)

// State 账本生命周期：running 是唯一可变状态，halted / stopped 都是终态
type State string

const (
	StateRunning State = "RUNNING"
	StateHalted  State = "HALTED"  // 爆仓：余额 <= 0，拒绝一切后续操作
	StateStopped State = "STOPPED" // 外部主动停止
)

// Config 账本的交易规则，来自配置文件，运行期间不变
type Config struct {
	Symbol             string
	InitialMargin      float64
	OrderMode          string  // service.OrderModeFixed / service.OrderModePercent
	FixedMargin        float64 // 固定模式：每单保证金
	PercentMargin      float64 // 百分比模式：每单占当前余额的百分比(%)
	Leverage           float64
	FeeRate            float64 // 小数形式，例如 0.0005
	LiquidationEnabled bool
}

// Ledger 持仓与保证金账本，三种引擎共用同一实现。
// 余额、水位、持仓列表、成交记录全部由一把锁保护：开仓/平仓/强平彼此原子，
// 权益刷新协程读到的永远是完整状态。
type Ledger struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger

	balance        float64 // 空闲保证金（不含已占用部分）
	initialBalance float64
	watermarkMax   float64 // 余额历史最高/最低水位，用于回撤
	watermarkMin   float64

	sequence int64 // 下一个订单序列号，只增不减
	open     []*model.Position
	closed   []model.ClosedTrade
	state    State
}

// New 创建账本，初始余额即初始保证金
func New(cfg Config, logger *zap.Logger) *Ledger {
	return &Ledger{
		cfg:            cfg,
		logger:         logger.With(zap.String("component", "ledger")),
		balance:        cfg.InitialMargin,
		initialBalance: cfg.InitialMargin,
		watermarkMax:   cfg.InitialMargin,
		watermarkMin:   cfg.InitialMargin,
		sequence:       1,
		state:          StateRunning,
	}
}

// Apply 处理一个策略信号：开仓或平仓。不操作信号直接忽略。
// 返回值表示这次信号是否真的改变了账本。
func (l *Ledger) Apply(sig model.Signal, price float64, ts time.Time) bool {
	if dir, ok := sig.OpenDirection(); ok {
		_, opened := l.Open(dir, price, ts)
		return opened
	}
	if _, ok := sig.CloseDirection(); ok {
		_, closed := l.Close(sig, price, ts)
		return closed
	}
	return false
}

// Open 按配置的保证金模式开仓。保证金不足时静默跳过（只记日志），不算错误。
func (l *Ledger) Open(side model.Direction, price float64, ts time.Time) (*model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning || price <= 0 {
		return nil, false
	}

	orderMargin := l.cfg.FixedMargin
	if l.cfg.OrderMode == service.OrderModePercent {
		orderMargin = l.balance * l.cfg.PercentMargin / 100
	}

	if l.balance < orderMargin {
		l.logger.Warn("Insufficient margin, open skipped",
			zap.String("side", side.String()),
			zap.Float64("need", orderMargin),
			zap.Float64("have", l.balance))
		return nil, false
	}

	notional := orderMargin * l.cfg.Leverage
	fee := notional * l.cfg.FeeRate

	pos := &model.Position{
		Sequence:         l.sequence,
		Side:             side,
		Symbol:           l.cfg.Symbol,
		EntryPrice:       price,
		EntryTime:        ts,
		Margin:           orderMargin,
		Leverage:         l.cfg.Leverage,
		Notional:         notional,
		EntryFee:         fee,
		LiquidationPrice: liquidationPrice(side, price, orderMargin, notional),
	}
	l.sequence++

	l.setBalance(l.balance - orderMargin - fee)
	l.open = append(l.open, pos)

	l.logger.Info("Order opened",
		zap.Int64("sequence", pos.Sequence),
		zap.String("side", side.String()),
		zap.Float64("price", price),
		zap.Float64("margin", orderMargin),
		zap.Float64("leverage", l.cfg.Leverage),
		zap.Float64("fee", fee),
		zap.Float64("notional", notional),
		zap.Float64("liquidationPrice", pos.LiquidationPrice),
		zap.Float64("balance", l.balance))

	l.checkBust()
	return pos, true
}

// Close 处理平仓信号：按插入顺序找到第一笔方向匹配的持仓平掉。
// 没有匹配持仓时是 no-op（记日志），账本不变。
func (l *Ledger) Close(sig model.Signal, price float64, ts time.Time) (*model.ClosedTrade, bool) {
	dir, ok := sig.CloseDirection()
	if !ok {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning || price <= 0 {
		return nil, false
	}

	for i, pos := range l.open {
		if pos.Side != dir {
			continue
		}
		trade := l.closePosition(i, price, ts, model.ReasonSignal)
		return &trade, true
	}

	l.logger.Info("No matching position for close signal",
		zap.String("signal", string(sig)),
		zap.Float64("price", price))
	return nil, false
}

// CheckLiquidation 扫描全部持仓，价格触达强平价的立即强平。
// 每个信号处理完后都要调用；实测/实盘模式下每个价格采样也要调用。
// 强平后余额 <= 0 则进入 halted 终态，剩余持仓不再处理。
func (l *Ledger) CheckLiquidation(price float64, ts time.Time) []model.ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.LiquidationEnabled || l.state != StateRunning || price <= 0 {
		return nil
	}

	var liquidated []model.ClosedTrade
	for i := 0; i < len(l.open); {
		pos := l.open[i]
		breached := (pos.Side == model.DirLong && price <= pos.LiquidationPrice) ||
			(pos.Side == model.DirShort && price >= pos.LiquidationPrice)
		if !breached {
			i++
			continue
		}

		l.logger.Warn("Liquidation triggered",
			zap.Int64("sequence", pos.Sequence),
			zap.String("side", pos.Side.String()),
			zap.Float64("price", price),
			zap.Float64("liquidationPrice", pos.LiquidationPrice))

		trade := l.closePosition(i, price, ts, model.ReasonLiquidation)
		liquidated = append(liquidated, trade)

		if l.state != StateRunning {
			break // 爆仓，立即停止处理
		}
	}
	return liquidated
}

// closePosition 统一的平仓路径（信号平仓与强平共用）。调用方必须持锁。
func (l *Ledger) closePosition(idx int, price float64, ts time.Time, reason model.CloseReason) model.ClosedTrade {
	pos := l.open[idx]

	exitFee := pos.Notional * l.cfg.FeeRate
	profit := pos.UnrealizedPnL(price)

	l.setBalance(l.balance + pos.Margin + profit - exitFee)
	l.open = append(l.open[:idx], l.open[idx+1:]...)

	trade := model.ClosedTrade{
		Sequence:   pos.Sequence,
		Side:       pos.Side,
		Symbol:     pos.Symbol,
		Reason:     reason,
		Profit:     profit,
		Margin:     pos.Margin,
		Notional:   pos.Notional,
		OpenPrice:  pos.EntryPrice,
		ClosePrice: price,
		TotalFee:   pos.EntryFee + exitFee,
		OpenTime:   pos.EntryTime,
		CloseTime:  ts,
	}
	l.closed = append(l.closed, trade)

	l.logger.Info("Order closed",
		zap.Int64("sequence", trade.Sequence),
		zap.String("side", trade.Side.String()),
		zap.String("reason", string(reason)),
		zap.Float64("closePrice", price),
		zap.Float64("profit", profit),
		zap.Float64("totalFee", trade.TotalFee),
		zap.Float64("balance", l.balance))

	l.checkBust()
	return trade
}

// setBalance 更新余额并维护最大/最小水位。余额保留 4 位小数。
func (l *Ledger) setBalance(v float64) {
	l.balance = roundTo4(v)
	if l.balance > l.watermarkMax {
		l.watermarkMax = l.balance
	}
	if l.balance < l.watermarkMin {
		l.watermarkMin = l.balance
	}
}

// checkBust 余额打穿到 0 以下即爆仓，账本进入终态。调用方必须持锁。
func (l *Ledger) checkBust() {
	if l.state == StateRunning && l.balance <= 0 {
		l.state = StateHalted
		l.logger.Error("Account blown up, ledger halted",
			zap.Float64("balance", l.balance))
	}
}

// liquidationPrice 强平价公式（非标准维持保证金模型，口径不可改动）：
//
//	多头: entry * (1 - notional/(notional+margin))
//	空头: entry * (1 + notional/(notional+margin))
func liquidationPrice(side model.Direction, entry, margin, notional float64) float64 {
	if notional+margin == 0 {
		return 0
	}
	ratio := notional / (notional + margin)
	if side == model.DirLong {
		return entry * (1 - ratio)
	}
	return entry * (1 + ratio)
}

// UnrealizedPnL 全部持仓按当前价的浮动盈亏之和。纯读取。
func (l *Ledger) UnrealizedPnL(price float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unrealizedPnL(price)
}

func (l *Ledger) unrealizedPnL(price float64) float64 {
	var total float64
	for _, pos := range l.open {
		total += pos.UnrealizedPnL(price)
	}
	return total
}

// Equity 总权益 = 余额 + 浮动盈亏
func (l *Ledger) Equity(price float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance + l.unrealizedPnL(price)
}

// Balance 当前空闲保证金余额
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// InitialBalance 运行起点的初始金额
func (l *Ledger) InitialBalance() float64 {
	return l.initialBalance
}

// Watermarks 余额最高/最低水位
func (l *Ledger) Watermarks() (max, min float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watermarkMax, l.watermarkMin
}

// State 当前生命周期状态
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Halted 是否已爆仓
func (l *Ledger) Halted() bool {
	return l.State() == StateHalted
}

// Stop 外部主动停止。已经处于终态时不做任何事。
func (l *Ledger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateRunning {
		l.state = StateStopped
		l.logger.Info("Ledger stopped", zap.Float64("balance", l.balance))
	}
}

// FirstOpen 按插入顺序返回第一笔方向匹配的持仓副本。
// 实盘引擎在发交易所平仓单之前用它确定要平的仓位和数量。
func (l *Ledger) FirstOpen(dir model.Direction) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pos := range l.open {
		if pos.Side == dir {
			return *pos, true
		}
	}
	return model.Position{}, false
}

// OpenCount 当前未平仓数量
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// ClosedTrades 返回成交记录的副本，防止外部修改
func (l *Ledger) ClosedTrades() []model.ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()
	trades := make([]model.ClosedTrade, len(l.closed))
	copy(trades, l.closed)
	return trades
}

func roundTo4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
