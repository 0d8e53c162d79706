package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercebridge/reconciler/internal/config"
	"github.com/commercebridge/reconciler/internal/email"
	"github.com/commercebridge/reconciler/internal/handler"
	"github.com/commercebridge/reconciler/internal/infra/postgresql"
	"github.com/commercebridge/reconciler/internal/infra/postgresql/migrations"
	infraredis "github.com/commercebridge/reconciler/internal/infra/redis"
	"github.com/commercebridge/reconciler/internal/observability"
	"github.com/commercebridge/reconciler/internal/repository"
	"github.com/commercebridge/reconciler/internal/service"
	"github.com/commercebridge/reconciler/internal/sevdesk"
	"github.com/commercebridge/reconciler/internal/shopify"
	"github.com/commercebridge/reconciler/internal/transport"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.ShopifyRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	invoiceSource, err := sevdesk.NewClient(cfg.SevdeskBaseURL, cfg.SevdeskAPIKey)
	if err != nil {
		logger.Fatal("sevdesk client initialization failed", zap.Error(err))
	}

	orderDirectory, err := shopify.NewClient(
		cfg.ShopifyShopURL,
		cfg.ShopifyClientID,
		cfg.ShopifyClientSecret,
		limiter,
	)
	if err != nil {
		logger.Fatal("shopify client initialization failed", zap.Error(err))
	}

	records := repository.NewGormRecordRepo(db)
	notifier := email.NewShopifyAutoNotifier(logger)
	metrics := observability.NewMetrics()

	processor, err := service.NewProcessor(
		records,
		orderDirectory,
		notifier,
		func() bool { return cfg.DryRun },
		metrics,
		logger,
	)
	if err != nil {
		logger.Fatal("processor initialization failed", zap.Error(err))
	}

	poller, err := service.NewPoller(
		invoiceSource,
		processor,
		time.Duration(cfg.PollIntervalSec)*time.Second,
		metrics,
		logger,
	)
	if err != nil {
		logger.Fatal("poller initialization failed", zap.Error(err))
	}

	if cfg.PollEnabled {
		poller.Start(context.Background())
	} else {
		logger.Warn("invoice polling disabled by configuration")
	}

	app := fiber.New(fiber.Config{
		AppName:      "reconciler",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterHistoryRoutes(app.Group("/api"), records); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	app.Get("/metrics", metrics.FiberHandler())

	go func() {
		logger.Info("reconciler api started",
			zap.Int("port", cfg.APIPort),
			zap.Bool("dryRun", cfg.DryRun),
			zap.Bool("pollEnabled", cfg.PollEnabled),
		)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	// Stop polling first so no cycle is mid-flight when the server and
	// connections go away.
	poller.Stop()

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("reconciler stopped")
}
