package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
)

func TestOpenStoresMemoryWithSeed(t *testing.T) {
	cfg := config.Config{Storage: config.StorageMemory, SeedSampleData: true}

	stores, db, err := OpenStores(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, db)

	u, err := stores.Users.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", u.Name)

	ev, err := stores.Seats.GetEvent(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, 100, ev.TotalSeats)
}

func TestDatabaseOptionsCarriesPoolSettings(t *testing.T) {
	cfg := config.Config{
		DBUser: "app", DBHost: "db", DBPort: "3306", DBName: "booking",
		DBMaxOpenConns: 8, DBMaxIdleConns: 4, DBConnMaxLifetime: 5 * time.Minute,
	}

	o := DatabaseOptions(cfg)

	assert.Equal(t, 8, o.MaxOpenConns)
	assert.Equal(t, 4, o.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, o.ConnMaxLifetime)
	assert.Equal(t, "db:3306", o.DriverConfig().Addr)
}

func TestReadyChecksSkipsMissingDependencies(t *testing.T) {
	assert.Empty(t, ReadyChecks(nil, nil))

	ping := handler.PingFunc(func(context.Context) error { return errors.New("down") })
	deps := ReadyChecks(nil, ping)
	require.Contains(t, deps, "redis")
	assert.Error(t, deps["redis"].PingContext(context.Background()))
}
