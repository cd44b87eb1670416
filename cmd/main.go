package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"athena-engine/internal/engine"
	"athena-engine/internal/executor"
	"athena-engine/internal/market"
	"athena-engine/internal/model"
	"athena-engine/internal/service"
	"athena-engine/internal/strategy"

	"go.uber.org/zap"
)

func main() {
	service.InitLogger()
	logger := service.Logger
	defer logger.Sync()

	cfg := service.LoadConfig("config")
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}

	strat, err := strategy.New(&cfg.Strategy)
	if err != nil {
		logger.Fatal("Failed to create strategy", zap.Error(err))
	}

	// Ctrl+C / SIGTERM 触发优雅停止：引擎收尾后输出报表再退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Engine starting",
		zap.String("mode", string(cfg.Mode)),
		zap.String("symbol", cfg.Data.Symbol),
		zap.String("strategy", cfg.Strategy.Name))

	source := market.NewBinanceSource(cfg.Exchange, logger)

	switch cfg.Mode {
	case model.ModeBacktest:
		err = engine.NewBacktest(cfg, strat, source, logger).Run(ctx)

	case model.ModeSimulation:
		price := livePriceSource(ctx, cfg, source, logger)
		err = engine.NewSimulation(cfg, strat, source, price, logger).Run(ctx)

	case model.ModeLive:
		exec, execErr := executor.NewBinanceExecutor(ctx, cfg.Exchange, cfg.Data.Symbol, logger)
		if execErr != nil {
			logger.Fatal("Failed to create executor", zap.Error(execErr))
		}
		price := livePriceSource(ctx, cfg, source, logger)
		err = engine.NewLive(cfg, strat, source, price, exec, logger).Run(ctx)
	}

	if err != nil {
		logger.Fatal("Engine exited with error", zap.Error(err))
	}
	logger.Info("Engine exited")
}

// livePriceSource 按配置选择行情来源：websocket 推送或 REST 轮询
func livePriceSource(ctx context.Context, cfg *service.Config, rest market.PriceSource, logger *zap.Logger) market.PriceSource {
	if !cfg.Exchange.UseWebsocket {
		return rest
	}
	stream := market.NewStream(cfg.Exchange.WSURL, cfg.Data.Symbol, logger)
	stream.Start(ctx)
	return stream
}
