package inventory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/router"
)

func newRemote(t *testing.T, capacity int) *inventory.Client {
	t.Helper()
	inv, _ := newInventory(t, capacity)
	e := echo.New()
	router.RegisterInternal(e, handler.NewInventoryHandler(inv, nil), nil)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return inventory.NewClient(srv.URL+"/", time.Second)
}

func TestClient_RoundTrip(t *testing.T) {
	c := newRemote(t, 5)
	ctx := context.Background()

	av, err := c.CheckAvailability(ctx, 101, 3)
	require.NoError(t, err)
	assert.Equal(t, model.Availability{Available: true, FreeCount: 5}, av)

	seats, err := c.Reserve(ctx, 101, 3, "b-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seats)

	again, err := c.Reserve(ctx, 101, 3, "b-1")
	require.NoError(t, err)
	assert.Equal(t, seats, again)

	n, err := c.Release(ctx, 101, "b-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClient_DomainErrors(t *testing.T) {
	c := newRemote(t, 2)
	ctx := context.Background()

	_, err := c.CheckAvailability(ctx, 999, 1)
	assert.ErrorIs(t, err, model.ErrEventNotFound)

	_, err = c.Reserve(ctx, 101, 3, "b-1")
	var short *model.InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 2, short.Free)

	_, err = c.Reserve(ctx, 101, 1, "b-2")
	require.NoError(t, err)
	_, err = c.Reserve(ctx, 101, 2, "b-2")
	assert.ErrorIs(t, err, model.ErrReservationConflict)

	_, err = c.CheckAvailability(ctx, 101, 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestClient_UpstreamFailures(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()

	_, err := inventory.NewClient(broken.URL, time.Second).Reserve(context.Background(), 101, 1, "b-1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	_, err = inventory.NewClient(slow.URL, 50*time.Millisecond).Release(context.Background(), 101, "b-1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)

	_, err = inventory.NewClient("http://127.0.0.1:1", time.Second).CheckAvailability(context.Background(), 101, 1)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}
