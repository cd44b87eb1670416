package engine

import (
	"time"

	"athena-engine/internal/model"
	"athena-engine/internal/service"
)

// Sample 喂给策略的一个价格点，带可读的时间标签
type Sample struct {
	Label string // 例如 "2024-01-01 08:00:00 high"
	Price float64
	Time  time.Time
}

// ExpandBars 按传参模型把 K 线拆成价格点序列：
//
//	ohlc:  开 -> 高 -> 低 -> 收
//	olhc:  开 -> 低 -> 高 -> 收
//	close: 仅收盘价
//
// 标签是 K 线开盘时间加上价位名，方便策略和日志定位
func ExpandBars(bars []model.KLine, mode model.ExpandModel) []Sample {
	perBar := 4
	if mode == model.ExpandCloseOnly {
		perBar = 1
	}

	samples := make([]Sample, 0, len(bars)*perBar)
	for _, bar := range bars {
		ts := bar.OpenTime.Format(service.TimeLayout)
		switch mode {
		case model.ExpandOLHC:
			samples = append(samples,
				Sample{ts + " open", bar.Open, bar.OpenTime},
				Sample{ts + " low", bar.Low, bar.OpenTime},
				Sample{ts + " high", bar.High, bar.OpenTime},
				Sample{ts + " close", bar.Close, bar.CloseTime})
		case model.ExpandCloseOnly:
			samples = append(samples,
				Sample{ts + " close", bar.Close, bar.CloseTime})
		default: // ohlc
			samples = append(samples,
				Sample{ts + " open", bar.Open, bar.OpenTime},
				Sample{ts + " high", bar.High, bar.OpenTime},
				Sample{ts + " low", bar.Low, bar.OpenTime},
				Sample{ts + " close", bar.Close, bar.CloseTime})
		}
	}
	return samples
}
