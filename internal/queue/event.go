// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// Queue names.  Routing keys equal queue names on the default exchange.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
)

// BookingEvent is published when a booking is confirmed or cancelled.  It
// carries enough for downstream consumers to log or notify without
// querying the ledger.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	UserID      int64     `json:"user_id"`
	EventID     int64     `json:"event_id"`
	TicketCount int       `json:"ticket_count"`
	SeatNumbers []int     `json:"seat_numbers"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewBookingEvent builds the payload for queue from a booking snapshot.
func NewBookingEvent(queue string, b *model.Booking, at time.Time) BookingEvent {
	seats := b.SeatNumbers
	if seats == nil {
		seats = []int{}
	}
	return BookingEvent{
		Type:        queue,
		BookingID:   b.ID,
		UserID:      b.UserID,
		EventID:     b.EventID,
		TicketCount: b.TicketCount,
		SeatNumbers: seats,
		Status:      string(b.Status),
		OccurredAt:  at.UTC(),
	}
}
