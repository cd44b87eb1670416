package market

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"athena-engine/internal/model"
	"athena-engine/internal/service"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
)

// 币安合约 klines 接口单次请求上限
const maxKlineLimit = 1500

// BinanceSource 基于 go-binance 合约客户端，同时实现 HistorySource 和 PriceSource
type BinanceSource struct {
	client *futures.Client
	logger *zap.Logger
}

// NewBinanceSource 创建行情客户端。行情接口不需要 API Key。
func NewBinanceSource(cfg service.ExchangeConfig, logger *zap.Logger) *BinanceSource {
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.RESTURL != "" {
		client.BaseURL = strings.TrimRight(cfg.RESTURL, "/")
	}
	// 所有请求带固定超时，调用失败由上层按周期重试
	client.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	return &BinanceSource{
		client: client,
		logger: logger.With(zap.String("component", "market")),
	}
}

// FetchHistory 分页拉取 [start, end) 区间的 K 线：
// 每页最多 1500 根，用上一页最后一根的 close_time+1 作为下一页起点，
// 最后统一去重、升序排序、剔除无效行。
func (b *BinanceSource) FetchHistory(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.KLine, error) {
	intervalDur, err := service.ParseIntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	startMs := start.UnixMilli()
	endMs := end.UnixMilli()
	if endMs-startMs < intervalDur.Milliseconds() {
		return nil, fmt.Errorf("time range %s ~ %s too small for interval %s",
			start.Format(service.TimeLayout), end.Format(service.TimeLayout), interval)
	}

	var raw []*futures.Kline
	current := startMs
	for current < endMs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(current).
			EndTime(endMs).
			Limit(maxKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
		}
		if len(page) == 0 {
			break
		}
		raw = append(raw, page...)
		current = page[len(page)-1].CloseTime + 1

		b.logger.Debug("Fetched kline page",
			zap.String("symbol", symbol),
			zap.Int("count", len(page)),
			zap.Int64("next", current))

		// 避免请求过于频繁
		time.Sleep(100 * time.Millisecond)
	}

	klines := make([]model.KLine, 0, len(raw))
	seen := make(map[int64]int, len(raw)) // OpenTime -> index，重复时保留后到的
	for _, kl := range raw {
		if kl == nil {
			continue
		}
		k, ok := convertKline(symbol, interval, kl)
		if !ok {
			continue // 含无效字段的行整行丢弃
		}
		if idx, dup := seen[kl.OpenTime]; dup {
			klines[idx] = k
			continue
		}
		seen[kl.OpenTime] = len(klines)
		klines = append(klines, k)
	}

	sort.Slice(klines, func(i, j int) bool {
		return klines[i].OpenTime.Before(klines[j].OpenTime)
	})

	if len(klines) == 0 {
		return nil, fmt.Errorf("no kline data for %s %s in range", symbol, interval)
	}

	b.logger.Info("History fetched",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(klines)))
	return klines, nil
}

// Latest 通过合约最新价接口取一个价格采样
func (b *BinanceSource) Latest(ctx context.Context, symbol string) (model.Ticker, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return model.Ticker{}, fmt.Errorf("poll price %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil || price <= 0 {
			return model.Ticker{}, fmt.Errorf("invalid price %q for %s", p.Price, symbol)
		}
		return model.Ticker{
			Symbol:    symbol,
			Timestamp: time.Now().UnixMilli(),
			Price:     price,
		}, nil
	}
	return model.Ticker{}, fmt.Errorf("no price returned for %s", symbol)
}

func convertKline(symbol, interval string, kl *futures.Kline) (model.KLine, bool) {
	open, err1 := strconv.ParseFloat(kl.Open, 64)
	high, err2 := strconv.ParseFloat(kl.High, 64)
	low, err3 := strconv.ParseFloat(kl.Low, 64)
	closeP, err4 := strconv.ParseFloat(kl.Close, 64)
	volume, err5 := strconv.ParseFloat(kl.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return model.KLine{}, false
	}
	if open <= 0 || high <= 0 || low <= 0 || closeP <= 0 {
		return model.KLine{}, false
	}
	return model.KLine{
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		OpenTime:  time.UnixMilli(kl.OpenTime),
		CloseTime: time.UnixMilli(kl.CloseTime),
	}, true
}
