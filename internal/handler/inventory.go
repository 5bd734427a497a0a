package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/model"
)

// SeatInventory is what the inventory endpoints need from the engine.
type SeatInventory interface {
	CheckAvailability(ctx context.Context, eventID int64, count int) (model.Availability, error)
	Reserve(ctx context.Context, eventID int64, count int, bookingID string) ([]int, error)
	Release(ctx context.Context, eventID int64, bookingID string) (int, error)
	Event(ctx context.Context, eventID int64) (*inventory.EventSummary, error)
}

// InventoryHandler serves the internal inventory API used by remote
// booking coordinators, plus the public event view.
type InventoryHandler struct {
	inv SeatInventory
	log *zap.Logger
}

func NewInventoryHandler(inv SeatInventory, log *zap.Logger) *InventoryHandler {
	if inv == nil {
		panic("nil inventory passed to NewInventoryHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryHandler{inv: inv, log: log}
}

// fail renders inventory errors; a shortage is a 409 on the internal API
// so clients can tell it apart from malformed requests.
func (h *InventoryHandler) fail(c echo.Context, err error) error {
	status := StatusFor(model.KindOf(err))
	if model.KindOf(err) == model.KindInsufficientInventory {
		status = http.StatusConflict
	}
	return writeErrorStatus(c, h.log, status, err)
}

func eventIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// Availability handles GET /internal/v1/events/:id/availability?count=N.
func (h *InventoryHandler) Availability(c echo.Context) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	count, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil || count <= 0 {
		return badRequest(c, "count must be a positive integer")
	}
	av, err := h.inv.CheckAvailability(c.Request().Context(), eventID, count)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"available": av.Available, "free_count": av.FreeCount})
}

// Reserve handles POST /internal/v1/events/:id/reservations with body
// {"booking_id": "...", "count": N}.
func (h *InventoryHandler) Reserve(c echo.Context) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body struct {
		BookingID string `json:"booking_id"`
		Count     int    `json:"count"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.BookingID) == "" || body.Count <= 0 {
		return badRequest(c, "booking_id and a positive count are required")
	}
	seats, err := h.inv.Reserve(c.Request().Context(), eventID, body.Count, body.BookingID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat_numbers": seats})
}

// Release handles DELETE /internal/v1/events/:id/reservations/:booking_id.
func (h *InventoryHandler) Release(c echo.Context) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	n, err := h.inv.Release(c.Request().Context(), eventID, c.Param("booking_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released_count": n})
}

// Event handles GET /v1/events/:id.
func (h *InventoryHandler) Event(c echo.Context) error {
	eventID, ok := eventIDParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	sum, err := h.inv.Event(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":              sum.Event.ID,
		"name":            sum.Event.Name,
		"total_seats":     sum.Event.TotalSeats,
		"available_seats": sum.FreeCount,
		"created_at":      sum.Event.CreatedAt,
	})
}
