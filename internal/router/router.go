// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// Deps collects what the routes need.  Nil handlers leave their routes
// unregistered and a nil Redis client turns off rate limiting, caching
// and idempotency.
type Deps struct {
	Bookings  *handler.BookingHandler
	Inventory *handler.InventoryHandler
	Ops       *handler.OpsHandler

	Redis       *redis.Client
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	Idempotency middleware.IdempotencyConfig

	Ready map[string]handler.Pinger
}

// RegisterRoutes registers the health probes, the public API under /v1 and
// the internal API under /internal/v1.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.Ready))

	// A typed nil *redis.Client inside an interface is not nil, so only
	// hand the middleware a store when there is a client.
	var (
		scripter redis.Scripter
		cache    middleware.CacheStore
		idem     middleware.IdempotencyStore
	)
	if d.Redis != nil {
		scripter, cache, idem = d.Redis, d.Redis, d.Redis
	}

	v1 := e.Group("/v1", middleware.NewTokenBucket(d.RateLimit, scripter))
	if d.Bookings != nil {
		v1.POST("/bookings", d.Bookings.Create, middleware.NewIdempotency(d.Idempotency, idem))
		v1.GET("/bookings/:id", d.Bookings.Get)
		v1.DELETE("/bookings/:id", d.Bookings.Cancel)
	}
	if d.Inventory != nil {
		v1.GET("/events/:id", d.Inventory.Event, middleware.NewRedisCache(d.Cache, cache))
	}

	RegisterInternal(e, d.Inventory, d.Ops)
}

// RegisterInternal registers the service-to-service API.  It is not rate
// limited or cached.
func RegisterInternal(e *echo.Echo, inv *handler.InventoryHandler, ops *handler.OpsHandler) {
	g := e.Group("/internal/v1")
	if inv != nil {
		g.GET("/events/:id/availability", inv.Availability)
		g.POST("/events/:id/reservations", inv.Reserve)
		g.DELETE("/events/:id/reservations/:booking_id", inv.Release)
	}
	if ops != nil {
		g.GET("/bookings/stale", ops.StaleBookings)
	}
}
