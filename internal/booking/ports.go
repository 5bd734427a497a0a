package booking

import (
	"context"

	"github.com/iliyamo/event-booking/internal/model"
)

// UserDirectory verifies that a user exists.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
}

// EventInventory is the seat inventory as seen by the coordinator.  Both
// the in-process engine and the HTTP client satisfy it.
type EventInventory interface {
	CheckAvailability(ctx context.Context, eventID int64, count int) (model.Availability, error)
	Reserve(ctx context.Context, eventID int64, count int, bookingID string) ([]int, error)
	Release(ctx context.Context, eventID int64, bookingID string) (int, error)
}

// Ledger persists bookings and their status.
type Ledger interface {
	Create(ctx context.Context, userID, eventID int64, ticketCount int) (string, error)
	Get(ctx context.Context, bookingID string) (*model.Booking, error)
	SetStatus(ctx context.Context, bookingID string, status model.BookingStatus, seatNumbers []int) error
	Delete(ctx context.Context, bookingID string) error
}

// Notifier announces finished bookings to other systems.  Failures are
// logged and never change the outcome of a booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *model.Booking) error
	BookingCancelled(ctx context.Context, b *model.Booking) error
}

type nopNotifier struct{}

func (nopNotifier) BookingConfirmed(context.Context, *model.Booking) error { return nil }
func (nopNotifier) BookingCancelled(context.Context, *model.Booking) error { return nil }
