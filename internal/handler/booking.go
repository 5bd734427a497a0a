package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/model"
)

// BookingService is what the booking endpoints need from the coordinator.
type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error)
}

// BookingHandler serves the public booking API.
type BookingHandler struct {
	svc BookingService
	log *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.  svc must be non-nil.
func NewBookingHandler(svc BookingService, log *zap.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{svc: svc, log: log}
}

type createBookingRequest struct {
	UserID          int64 `json:"user_id"`
	EventID         int64 `json:"event_id"`
	TicketCount     int   `json:"ticket_count"`
	NumberOfTickets int   `json:"number_of_tickets"`
}

type bookingResponse struct {
	BookingID   string    `json:"booking_id"`
	UserID      int64     `json:"user_id"`
	EventID     int64     `json:"event_id"`
	TicketCount int       `json:"ticket_count"`
	Status      string    `json:"status"`
	SeatNumbers []int     `json:"seat_numbers"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Message     string    `json:"message,omitempty"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	seats := b.SeatNumbers
	if seats == nil {
		seats = []int{}
	}
	return bookingResponse{
		BookingID:   b.ID,
		UserID:      b.UserID,
		EventID:     b.EventID,
		TicketCount: b.TicketCount,
		Status:      string(b.Status),
		SeatNumbers: seats,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// Create handles POST /v1/bookings.  The body carries user_id, event_id
// and ticket_count (number_of_tickets is accepted as an alias).  It
// returns 201 with the confirmed booking.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	count := body.TicketCount
	if count == 0 {
		count = body.NumberOfTickets
	}

	b, err := h.svc.CreateBooking(c.Request().Context(), booking.CreateBookingRequest{
		UserID:      body.UserID,
		EventID:     body.EventID,
		TicketCount: count,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	resp := toBookingResponse(b)
	resp.Message = "Booking created successfully"
	return c.JSON(http.StatusCreated, resp)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.svc.GetBooking(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.svc.CancelBooking(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"message":    "Booking cancelled successfully",
		"booking_id": b.ID,
		"status":     string(b.Status),
	})
}
