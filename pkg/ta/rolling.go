// Package ta 在 go-talib 之上提供一个按价格逐点喂入的滚动窗口，
// 供策略在 (time, price) 回调模型下计算指标。
package ta

import (
	"sync"

	"github.com/markcheno/go-talib"
)

// Bands 一组布林带值
type Bands struct {
	Mid   float64
	Upper float64
	Lower float64
}

// RollingSeries 保存最近 N 个价格采样
type RollingSeries struct {
	mu     sync.Mutex
	prices []float64
	maxLen int
}

// NewRollingSeries 创建滚动序列；maxLen 限制历史长度，防止无界增长
func NewRollingSeries(maxLen int) *RollingSeries {
	if maxLen < 2 {
		maxLen = 2
	}
	return &RollingSeries{
		prices: make([]float64, 0, maxLen),
		maxLen: maxLen,
	}
}

// Append 追加一个价格采样，超出上限时丢弃最旧的数据
func (r *RollingSeries) Append(price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prices = append(r.prices, price)
	if len(r.prices) > r.maxLen {
		r.prices = r.prices[len(r.prices)-r.maxLen:]
	}
}

// Len 当前已累积的采样数
func (r *RollingSeries) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prices)
}

// Bollinger 计算最新一组布林带。历史不足 window 时返回 ok=false，
// 调用方应视为预热阶段。
func (r *RollingSeries) Bollinger(window int, stdMultiplier float64) (Bands, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.prices) < window {
		return Bands{}, false
	}

	upper, mid, lower := talib.BBands(r.prices, window, stdMultiplier, stdMultiplier, talib.SMA)
	last := len(r.prices) - 1
	return Bands{
		Mid:   mid[last],
		Upper: upper[last],
		Lower: lower[last],
	}, true
}

// Sma 最新的简单移动平均；历史不足时返回 ok=false
func (r *RollingSeries) Sma(window int) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.prices) < window {
		return 0, false
	}
	result := talib.Sma(r.prices, window)
	return result[len(result)-1], true
}
