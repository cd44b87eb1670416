package executor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"athena-engine/internal/model"
	"athena-engine/internal/service"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"
)

// BinanceExecutor 币安 USDT 本位合约下单通道，双向持仓模式
type BinanceExecutor struct {
	client *futures.Client
	symbol string
	logger *zap.Logger

	qtyPrecision int // 数量小数位，来自 exchangeInfo
}

// NewBinanceExecutor 创建下单通道并拉取交易对的数量精度
func NewBinanceExecutor(ctx context.Context, cfg service.ExchangeConfig, symbol string, logger *zap.Logger) (*BinanceExecutor, error) {
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.RESTURL != "" {
		client.BaseURL = strings.TrimRight(cfg.RESTURL, "/")
	}
	client.HTTPClient = &http.Client{Timeout: 10 * time.Second}

	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	precision := -1
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			precision = s.QuantityPrecision
			break
		}
	}
	if precision < 0 {
		return nil, fmt.Errorf("symbol %s not found on exchange", symbol)
	}

	return &BinanceExecutor{
		client:       client,
		symbol:       symbol,
		logger:       logger.With(zap.String("component", "executor")),
		qtyPrecision: precision,
	}, nil
}

// PlaceMarketOrder 市价下单。开多/平空 -> BUY，开空/平多 -> SELL；
// positionSide 始终是仓位本身的方向。
func (e *BinanceExecutor) PlaceMarketOrder(ctx context.Context, side model.Direction, closing bool, quantity float64) (Fill, error) {
	qty := e.formatQuantity(quantity)
	if qty == "" {
		return Fill{}, fmt.Errorf("quantity %v rounds to zero at precision %d", quantity, e.qtyPrecision)
	}

	orderSide := futures.SideTypeBuy
	if (side == model.DirLong) == closing {
		orderSide = futures.SideTypeSell
	}
	positionSide := futures.PositionSideTypeLong
	if side == model.DirShort {
		positionSide = futures.PositionSideTypeShort
	}

	order, err := e.client.NewCreateOrderService().
		Symbol(e.symbol).
		Side(orderSide).
		PositionSide(positionSide).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		Do(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("place market order %s %s qty=%s: %w", orderSide, positionSide, qty, err)
	}

	e.logger.Info("Exchange order placed",
		zap.Int64("orderId", order.OrderID),
		zap.String("side", string(orderSide)),
		zap.String("positionSide", string(positionSide)),
		zap.String("quantity", qty),
		zap.Bool("closing", closing))

	return Fill{
		OrderID:  order.OrderID,
		Symbol:   e.symbol,
		Side:     side,
		Quantity: quantity,
		Closing:  closing,
	}, nil
}

// Positions 查询当前持仓，数量为 0 的条目丢弃
func (e *BinanceExecutor) Positions(ctx context.Context, symbol string) ([]ExchangePosition, error) {
	risks, err := e.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("query position risk: %w", err)
	}

	var positions []ExchangePosition
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		liq, _ := strconv.ParseFloat(r.LiquidationPrice, 64)

		side := model.DirLong
		if r.PositionSide == "SHORT" || amt < 0 {
			side = model.DirShort
		}
		positions = append(positions, ExchangePosition{
			Symbol:           r.Symbol,
			Side:             side,
			PositionAmt:      amt,
			EntryPrice:       entry,
			UnrealizedProfit: pnl,
			LiquidationPrice: liq,
		})
	}
	return positions, nil
}

// Balance 查询 USDT 可用余额
func (e *BinanceExecutor) Balance(ctx context.Context) (float64, error) {
	balances, err := e.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	for _, b := range balances {
		if b.Asset != "USDT" {
			continue
		}
		available, err := strconv.ParseFloat(b.AvailableBalance, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid balance %q: %w", b.AvailableBalance, err)
		}
		return available, nil
	}
	return 0, fmt.Errorf("no USDT balance entry returned")
}

// SetLeverage 设置杠杆倍数
func (e *BinanceExecutor) SetLeverage(ctx context.Context, leverage int) error {
	resp, err := e.client.NewChangeLeverageService().
		Symbol(e.symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("change leverage to %d: %w", leverage, err)
	}
	e.logger.Info("Leverage set",
		zap.String("symbol", resp.Symbol),
		zap.Int("leverage", resp.Leverage))
	return nil
}

// formatQuantity 按交易所数量精度截断；结果为 0 时返回空串
func (e *BinanceExecutor) formatQuantity(q float64) string {
	s := strconv.FormatFloat(q, 'f', e.qtyPrecision, 64)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return ""
	}
	return s
}
