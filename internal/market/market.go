// Package market 行情采集：历史 K 线拉取与最新价获取。
// 核心引擎只依赖这里的两个接口，不关心数据从 REST 还是 websocket 来。
package market

import (
	"context"
	"time"

	"athena-engine/internal/model"
)

// HistorySource 历史 K 线来源。返回结果必须按时间升序、去重、
// 并剔除无效数据行。
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.KLine, error)
}

// PriceSource 最新价来源。实现必须在有限时间内返回（内部带超时）。
type PriceSource interface {
	Latest(ctx context.Context, symbol string) (model.Ticker, error)
}
