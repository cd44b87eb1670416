package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"athena-engine/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 断线后的固定重连间隔
const reconnectDelay = 5 * time.Second

// Stream 订阅币安合约标记价格推送，缓存最新价。
// 实现 PriceSource：Latest 直接返回缓存，不发起网络请求。
type Stream struct {
	wsURL  string
	symbol string
	logger *zap.Logger

	mu   sync.RWMutex
	last model.Ticker
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// markPriceEvent 标记价格推送的字段子集
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// NewStream 创建行情推送客户端，需要随后调用 Start 启动
func NewStream(wsURL, symbol string, logger *zap.Logger) *Stream {
	return &Stream{
		wsURL:  strings.TrimRight(wsURL, "/"),
		symbol: symbol,
		logger: logger.With(zap.String("component", "stream")),
	}
}

// Start 启动后台读取协程，ctx 取消后退出
func (s *Stream) Start(ctx context.Context) {
	go s.run(ctx)
}

// run 连接-订阅-读取的主循环，任何错误都断开重连
func (s *Stream) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectAndRead(ctx); err != nil {
			s.logger.Warn("Websocket disconnected, reconnecting",
				zap.String("symbol", s.symbol),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	sub := subscribeMessage{
		Method: "SUBSCRIBE",
		Params: []string{strings.ToLower(s.symbol) + "@markPrice@1s"},
		ID:     1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("Websocket connected",
		zap.String("symbol", s.symbol),
		zap.String("url", s.wsURL))

	// ctx 取消时主动关连接，打断阻塞中的 ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		s.handleMessage(payload)
	}
}

func (s *Stream) handleMessage(payload []byte) {
	var event markPriceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}
	// 订阅确认等非行情消息没有事件类型，直接忽略
	if event.EventType != "markPriceUpdate" || event.Symbol != s.symbol {
		return
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	s.mu.Lock()
	s.last = model.Ticker{
		Symbol:    event.Symbol,
		Timestamp: event.EventTime,
		Price:     price,
	}
	s.mu.Unlock()
}

// Latest 返回缓存的最新价；连上之前还没有任何推送时报错，由调用方重试
func (s *Stream) Latest(_ context.Context, symbol string) (model.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last.Price <= 0 || s.last.Symbol != symbol {
		return model.Ticker{}, fmt.Errorf("no price received yet for %s", symbol)
	}
	return s.last, nil
}
