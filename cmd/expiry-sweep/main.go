// README: One-shot expiry sweep for cron; cancels orders past their payment or confirmation deadline.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"gigmarket/internal/app"
	"gigmarket/internal/config"
	"gigmarket/internal/infra"
	"gigmarket/internal/modules/order"
)

const sweepTimeout = 5 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Print(err)
		return 1
	}
	logger, err := infra.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Print(err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("wiring failed", zap.Error(err))
		return 1
	}
	defer func() { _ = a.Close() }()

	res, err := a.Orders.UpdateExpiredOrders(ctx)
	var partial *order.ExpiryProcessingError
	switch {
	case errors.As(err, &partial):
		logger.Warn("expiry sweep finished with failures",
			zap.Int("updated", partial.Updated), zap.Int("failed", len(partial.Failed)), zap.Error(err))
		return 2
	case err != nil:
		logger.Error("expiry sweep failed", zap.Error(err))
		return 1
	}
	logger.Info("expiry sweep finished", zap.Int("updated", res.UpdatedCount))
	return 0
}
