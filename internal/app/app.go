// Package app holds the startup plumbing shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/repository"
)

// OpenStores opens the configured storage backend, migrating the schema
// and seeding sample data when asked.  db is nil for the memory backend.
func OpenStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores repository.Stores, db *sql.DB, err error) {
	switch cfg.Storage {
	case config.StorageMemory:
		stores = repository.NewMemoryStores()
		log.Info("using in-memory storage")
	default:
		db, err = database.Connect(ctx, DatabaseOptions(cfg))
		if err != nil {
			return stores, nil, fmt.Errorf("open mysql: %w", err)
		}
		stores = repository.NewMySQLStores(db)
		log.Info("connected to mysql",
			zap.String("host", cfg.DBHost),
			zap.String("db", cfg.DBName),
			zap.Int("max_open_conns", cfg.DBMaxOpenConns))
	}

	if cfg.SeedSampleData {
		if err = repository.SeedSampleData(ctx, stores.Users, stores.Events); err != nil {
			if db != nil {
				_ = db.Close()
			}
			return stores, nil, err
		}
		log.Info("sample data seeded",
			zap.Int("users", len(repository.SampleUsers)),
			zap.Int("events", len(repository.SampleEvents)))
	}
	return stores, db, nil
}

// DatabaseOptions maps the DB_* settings onto database.Options.
func DatabaseOptions(cfg config.Config) database.Options {
	return database.Options{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}
}

// NewEcho returns an Echo instance with the common middleware chain.
func NewEcho(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.Recover(log))
	return e
}

// ReadyChecks lists the dependencies probed by /readyz.
func ReadyChecks(db *sql.DB, redisPing handler.Pinger) map[string]handler.Pinger {
	deps := map[string]handler.Pinger{}
	if db != nil {
		deps["mysql"] = db
	}
	if redisPing != nil {
		deps["redis"] = redisPing
	}
	return deps
}

// Serve runs e on addr until SIGINT or SIGTERM, then drains in-flight
// requests for up to shutdownTimeout.
func Serve(ctx context.Context, e *echo.Echo, addr string, shutdownTimeout time.Duration, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
