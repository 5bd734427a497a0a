package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/app"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/router"
)

// The inventory service owns seats and serves the internal reservation
// API to remote booking coordinators, plus the public event view.
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

	ctx := context.Background()
	stores, db, err := app.OpenStores(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("storage", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		zl.Warn("redis unavailable, caching and rate limiting disabled", zap.Error(err))
	}
	var redisPing handler.Pinger
	if rdb != nil {
		defer rdb.Close()
		redisPing = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	inv := inventory.New(stores.Seats, zl)

	e := app.NewEcho(zl)
	router.RegisterRoutes(e, router.Deps{
		Inventory: handler.NewInventoryHandler(inv, zl),
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Ready:     app.ReadyChecks(db, redisPing),
	})

	zl.Info("inventory service starting", zap.String("env", cfg.Env), zap.String("storage", cfg.Storage))
	if err := app.Serve(ctx, e, ":"+cfg.Port, cfg.ShutdownTimeout, zl); err != nil {
		zl.Error("server stopped", zap.Error(err))
	}
}
