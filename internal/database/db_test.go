package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxOpenConns, o.MaxOpenConns)
	assert.Equal(t, DefaultMaxIdleConns, o.MaxIdleConns)
	assert.Equal(t, DefaultConnMaxLifetime, o.ConnMaxLifetime)
	assert.Equal(t, DefaultPingTimeout, o.PingTimeout)

	o = Options{MaxOpenConns: 4, MaxIdleConns: 10, ConnMaxLifetime: time.Minute}.withDefaults()
	assert.Equal(t, 4, o.MaxOpenConns)
	assert.Equal(t, 4, o.MaxIdleConns, "idle is capped at open")
	assert.Equal(t, time.Minute, o.ConnMaxLifetime)
}

func TestOptionsDriverConfig(t *testing.T) {
	cfg := Options{User: "app", Pass: "secret", Host: "db", Port: "3306", Name: "booking"}.DriverConfig()

	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "booking", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, time.UTC, cfg.Loc)
	assert.Contains(t, cfg.FormatDSN(), "app:secret@tcp(db:3306)/booking?")
}

func TestOpenDSNRejectsMalformedDSN(t *testing.T) {
	_, err := OpenDSN(context.Background(), "not a dsn", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse dsn")
}

func TestOpenReportsUnreachableServer(t *testing.T) {
	_, err := Open(context.Background(), Options{
		User: "app", Host: "127.0.0.1", Port: "1", Name: "booking",
		PingTimeout: 500 * time.Millisecond,
	})
	assert.Error(t, err)
}
