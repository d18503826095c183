package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"operadoras/internal/amqp"
	"operadoras/internal/cli"
	"operadoras/internal/config"
	apphttp "operadoras/internal/http"
	applog "operadoras/internal/log"
	"operadoras/internal/middleware/metrics"
	"operadoras/internal/service"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, applog.ComponentApp, nil)

	m := metrics.New()

	res, err := cli.OpenBackend(context.Background(), cfg, logger.WithComponent(applog.ComponentBackend).Logger, m)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	svc := service.New(res.Store, service.Options{
		MaxPageSize: cfg.MaxPageSize,
		Cache:       res.Cache,
		Logger:      logger.WithComponent(applog.ComponentService).Logger,
	})

	srv := apphttp.NewServer(svc, apphttp.Options{
		Addr:            ":" + cfg.Port,
		RequestTimeout:  cfg.RequestTimeout,
		RateLimitPerMin: cfg.RateLimitPerMin,
		MaxPageSize:     cfg.MaxPageSize,
		Logger:          logger.WithComponent(applog.ComponentHTTP),
		Metrics:         m,
	})

	// Refresh notifications are optional; without a broker the aggregate
	// cache only expires by TTL.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpLogger := logger.WithComponent(applog.ComponentAMQP).Logger
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpLogger)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without refresh notifications", "error", err)
			amqpClient = nil
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", "error", err)
		}
	})

	if amqpClient != nil {
		handler := amqp.InvalidateOnRefresh(svc, m.RefreshEvents.Inc, logger.WithComponent(applog.ComponentAMQP).Logger)
		go func() {
			if err := amqpClient.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Refresh consumer stopped", "error", err)
			}
		}()
	}

	logger.Info("Starting operadoras server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"cache", cfg.CacheBackend,
		"max_page_size", cfg.MaxPageSize)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
