package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
)

// StaleLister finds bookings a crashed saga left PENDING.
type StaleLister interface {
	Stale(ctx context.Context, olderThan time.Duration, limit int) ([]model.Booking, error)
}

// OpsHandler exposes operator endpoints for reconciling bookings.
type OpsHandler struct {
	ledger StaleLister
	log    *zap.Logger
}

func NewOpsHandler(ledger StaleLister, log *zap.Logger) *OpsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OpsHandler{ledger: ledger, log: log}
}

// StaleBookings handles GET /internal/v1/bookings/stale?older_than=5m&limit=100.
func (h *OpsHandler) StaleBookings(c echo.Context) error {
	olderThan := 5 * time.Minute
	if v := c.QueryParam("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return badRequest(c, "older_than must be a duration such as 5m")
		}
		olderThan = d
	}
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = n
	}
	list, err := h.ledger.Stale(c.Request().Context(), olderThan, limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]bookingResponse, 0, len(list))
	for i := range list {
		out = append(out, toBookingResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out, "count": len(out)})
}
