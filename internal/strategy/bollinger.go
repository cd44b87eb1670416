package strategy

import (
	"athena-engine/internal/model"
	"athena-engine/internal/service"
	"athena-engine/pkg/ta"
)

func init() {
	Register("bollinger", func(cfg *service.StrategyConfig) (Strategy, error) {
		return NewBollinger(cfg.Bollinger.Window, cfg.Bollinger.StdMultiplier), nil
	})
}

// Bollinger 内置示范策略：布林带突破/回归。
//
//	价格升破上轨后回落 -> 平多
//	价格跌破下轨后回升 -> 平空
//	价格在中轨与上轨之间 -> 做多
//	价格在下轨与中轨之间 -> 做空
//
// 窗口未满时返回不操作。
type Bollinger struct {
	window        int
	stdMultiplier float64

	series *ta.RollingSeries
	prev   ta.Bands
	warmed bool         // prev 是否已经有上一轮的布林带
	last   model.Signal // 上一个开仓方向，平仓信号只在方向匹配时发出
}

// NewBollinger 创建布林带策略
func NewBollinger(window int, stdMultiplier float64) *Bollinger {
	if window < 2 {
		window = 20
	}
	if stdMultiplier <= 0 {
		stdMultiplier = 2
	}
	return &Bollinger{
		window:        window,
		stdMultiplier: stdMultiplier,
		// 窗口之外多留一段历史，够 talib 计算即可
		series: ta.NewRollingSeries(window * 5),
	}
}

// Signal 实现 Strategy 接口
func (b *Bollinger) Signal(_ string, price float64) model.Signal {
	b.series.Append(price)

	bands, ok := b.series.Bollinger(b.window, b.stdMultiplier)
	if !ok {
		return model.SignalNone // 预热期
	}

	if !b.warmed {
		b.prev = bands
		b.warmed = true
		return model.SignalNone
	}

	sig := model.SignalNone
	switch {
	case price > bands.Upper && price < b.prev.Upper:
		if b.last == model.SignalOpenLong {
			sig = model.SignalCloseLong
		}
	case price < bands.Lower && price > b.prev.Lower:
		if b.last == model.SignalOpenShort {
			sig = model.SignalCloseShort
		}
	case price > bands.Mid && price < bands.Upper:
		sig = model.SignalOpenLong
	case price < bands.Mid && price > bands.Lower:
		sig = model.SignalOpenShort
	}

	if sig != model.SignalNone {
		b.last = sig
	}
	b.prev = bands
	return sig
}
