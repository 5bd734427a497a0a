package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/app"
	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/router"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(context.Background(), cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	stores, db, err := app.OpenStores(ctx, cfg, zl)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		zl.Warn("redis unavailable, caching, rate limiting and idempotency disabled", zap.Error(err))
	}
	var redisPing handler.Pinger
	if rdb != nil {
		defer rdb.Close()
		redisPing = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var (
		inv        booking.EventInventory
		invHandler *handler.InventoryHandler
	)
	if cfg.InventoryURL != "" {
		inv = inventory.NewClient(cfg.InventoryURL, cfg.CallTimeout)
		zl.Info("using remote inventory", zap.String("url", cfg.InventoryURL))
	} else {
		local := inventory.New(stores.Seats, zl)
		inv = local
		invHandler = handler.NewInventoryHandler(local, zl)
	}

	led := ledger.New(stores.Bookings)

	retry := booking.DefaultRetryPolicy()
	retry.MaxTries = uint(cfg.RetryMaxTries)
	retry.InitialInterval = cfg.RetryInitialInterval

	opts := []booking.Option{
		booking.WithLogger(zl.Named("booking")),
		booking.WithCallTimeout(cfg.CallTimeout),
		booking.WithRetryPolicy(retry),
	}
	if cfg.EventsEnabled {
		opts = append(opts, booking.WithNotifier(queue.NewPublisher(cfg.RabbitURL, zl.Named("publisher"))))
	}
	coord := booking.NewCoordinator(stores.Users, inv, led, opts...)

	if cfg.BookingLogConsumer {
		consumer := queue.NewBookingLogConsumer(cfg.RabbitURL, cfg.BookingLogPath, zl.Named("consumer"))
		consumerCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := consumer.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
				zl.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	e := app.NewEcho(zl)
	router.RegisterRoutes(e, router.Deps{
		Bookings:    handler.NewBookingHandler(coord, zl),
		Inventory:   invHandler,
		Ops:         handler.NewOpsHandler(led, zl),
		Redis:       rdb,
		RateLimit:   config.LoadRateLimitConfig(),
		Cache:       config.LoadCacheConfig(),
		Idempotency: middleware.IdempotencyConfig{},
		Ready:       app.ReadyChecks(db, redisPing),
	})

	zl.Info("booking service starting", zap.String("env", cfg.Env), zap.String("storage", cfg.Storage))
	return app.Serve(ctx, e, ":"+cfg.Port, cfg.ShutdownTimeout, zl)
}
