// Package stats 对成交记录做只读统计：收益率、回撤、胜率、盈亏极值、
// 标准差与类夏普比率。不持有任何账本状态。
package stats

import (
	"math"

	"athena-engine/internal/model"
)

// Summary 一次运行的统计结果
type Summary struct {
	InitialBalance     float64
	FinalBalance       float64
	ReturnRatePercent  float64 // (final - initial) / initial * 100
	MaxDrawdownPercent float64 // (initial - watermarkMin) / initial * 100，基于余额而非权益
	TradeCount         int
	WinRatePercent     float64
	MaxProfit          float64
	MinProfit          float64
	StdDev             float64 // 单笔盈亏的总体标准差，交易数 < 2 时为 0
	SharpeRatio        float64 // mean(profit)/stddev * sqrt(252)，简化口径：盈亏取绝对金额
}

// Summarize 汇总一次运行。watermarkMin 是运行期间余额的最低水位。
func Summarize(initial, final, watermarkMin float64, trades []model.ClosedTrade) Summary {
	s := Summary{
		InitialBalance: initial,
		FinalBalance:   final,
		TradeCount:     len(trades),
	}

	if initial != 0 {
		s.ReturnRatePercent = (final - initial) / initial * 100
		s.MaxDrawdownPercent = (initial - watermarkMin) / initial * 100
	}
	// 余额从未跌破初始金额时回撤为 0
	if s.MaxDrawdownPercent < 0 {
		s.MaxDrawdownPercent = 0
	}

	if len(trades) == 0 {
		return s
	}

	wins := 0
	s.MaxProfit = trades[0].Profit
	s.MinProfit = trades[0].Profit
	var sum float64
	for _, t := range trades {
		if t.Profit > 0 {
			wins++
		}
		s.MaxProfit = math.Max(s.MaxProfit, t.Profit)
		s.MinProfit = math.Min(s.MinProfit, t.Profit)
		sum += t.Profit
	}
	s.WinRatePercent = float64(wins) / float64(len(trades)) * 100

	// 标准差和夏普只有在至少两笔成交时才有意义
	if len(trades) >= 2 {
		mean := sum / float64(len(trades))
		var variance float64
		for _, t := range trades {
			variance += (t.Profit - mean) * (t.Profit - mean)
		}
		variance /= float64(len(trades))
		s.StdDev = math.Sqrt(variance)
		if s.StdDev != 0 {
			s.SharpeRatio = mean / s.StdDev * math.Sqrt(252)
		}
	}
	return s
}
