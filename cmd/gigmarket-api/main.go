// README: Entry point; loads config, wires services, starts HTTP server and the expiry sweep loop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"gigmarket/internal/app"
	"gigmarket/internal/config"
	httptransport "gigmarket/internal/http"
	"gigmarket/internal/infra"
	"gigmarket/internal/modules/ordercache"
)

const serviceName = "gigmarket-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := infra.InitTelemetry(ctx, serviceName, cfg.Env, logger)
	if err != nil {
		logger.Fatal("telemetry init", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wiring failed", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	if cfg.Payment.WebhookToken == "" && a.Reconciler != nil {
		logger.Warn("PAYMENT_WEBHOOK_TOKEN not set; payment webhooks will be rejected")
	}

	server := httptransport.NewServer(httptransport.ServerDeps{
		Addr:           cfg.HTTP.Addr,
		Order:          a.Orders,
		Reconciler:     a.Reconciler,
		Verifier:       a.Verifier,
		Registry:       ordercache.NewRegistry(),
		StreamFallback: cfg.Order.SubscriptionFallback,
		WebhookToken:   cfg.Payment.WebhookToken,
		Logger:         logger,
	})

	go a.Orders.RunTimeoutMonitor(ctx, cfg.Order.SweepInterval, a.Locker)

	if err := server.Run(ctx); err != nil {
		logger.Error("http server", zap.Error(err))
	}
}
