// Package inventory allocates and frees the seats of an event.  Every
// mutation of one event's seats runs inside that event's critical section
// so concurrent bookings can never hand out the same seat twice or push
// the event past its capacity.
package inventory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
)

// SeatTx is the view of one event's seats available while its lock is
// held.  Implementations must only be used inside Store.WithEventLock.
type SeatTx interface {
	// SeatsOwnedBy returns the seat numbers reserved by bookingID, ascending.
	SeatsOwnedBy(ctx context.Context, bookingID string) ([]int, error)
	// FreeSeats returns up to limit FREE seat numbers, lowest first.
	FreeSeats(ctx context.Context, limit int) ([]int, error)
	// CountFree returns the number of FREE seats.
	CountFree(ctx context.Context) (int, error)
	// MarkReserved flips the given FREE seats to RESERVED for bookingID.
	// It fails with model.ErrReservationConflict if any seat was not FREE.
	MarkReserved(ctx context.Context, seatNumbers []int, bookingID string) error
	// MarkFree frees every seat owned by bookingID and returns how many.
	MarkFree(ctx context.Context, bookingID string) (int, error)
}

// Store persists events and seats.
type Store interface {
	// WithEventLock runs fn while holding the exclusive lock of eventID.
	// It returns model.ErrEventNotFound when the event does not exist.
	// Changes made through tx are committed only if fn returns nil.
	WithEventLock(ctx context.Context, eventID int64, fn func(ctx context.Context, tx SeatTx) error) error
	GetEvent(ctx context.Context, eventID int64) (*model.Event, error)
	CountFree(ctx context.Context, eventID int64) (int, error)
}

// EventSummary is an event together with its current free seat count.
type EventSummary struct {
	Event     model.Event
	FreeCount int
}

// Inventory is the seat allocation engine.
type Inventory struct {
	store Store
	log   *zap.Logger
}

// New returns an Inventory backed by store.
func New(store Store, log *zap.Logger) *Inventory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inventory{store: store, log: log.Named("inventory")}
}

// CheckAvailability reports whether count seats are currently free.  It
// is a read-only probe; the answer can be stale by the time Reserve runs.
func (inv *Inventory) CheckAvailability(ctx context.Context, eventID int64, count int) (model.Availability, error) {
	if err := validate(eventID, count); err != nil {
		return model.Availability{}, err
	}
	if _, err := inv.store.GetEvent(ctx, eventID); err != nil {
		return model.Availability{}, err
	}
	free, err := inv.store.CountFree(ctx, eventID)
	if err != nil {
		return model.Availability{}, err
	}
	return model.Availability{Available: free >= count, FreeCount: free}, nil
}

// Reserve allocates count seats of eventID to bookingID and returns the
// seat numbers in ascending order.  Calling it again with the same
// bookingID and count returns the seats already held without changing
// anything.
func (inv *Inventory) Reserve(ctx context.Context, eventID int64, count int, bookingID string) ([]int, error) {
	if err := validate(eventID, count); err != nil {
		return nil, err
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: booking_id is required", model.ErrInvalidInput)
	}

	var seats []int
	err := inv.store.WithEventLock(ctx, eventID, func(ctx context.Context, tx SeatTx) error {
		owned, err := tx.SeatsOwnedBy(ctx, bookingID)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			if len(owned) != count {
				return fmt.Errorf("%w: booking %s already holds %d seats, requested %d",
					model.ErrReservationConflict, bookingID, len(owned), count)
			}
			seats = owned
			return nil
		}

		candidates, err := tx.FreeSeats(ctx, count)
		if err != nil {
			return err
		}
		if len(candidates) < count {
			free, err := tx.CountFree(ctx)
			if err != nil {
				return err
			}
			return &model.InsufficientInventoryError{EventID: eventID, Requested: count, Free: free}
		}
		if err := tx.MarkReserved(ctx, candidates, bookingID); err != nil {
			return err
		}
		seats = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv.log.Debug("seats reserved",
		zap.Int64("event_id", eventID),
		zap.String("booking_id", bookingID),
		zap.Ints("seats", seats))
	return seats, nil
}

// Release frees every seat of eventID held by bookingID.  Releasing a
// booking that holds nothing is not an error and returns 0.
func (inv *Inventory) Release(ctx context.Context, eventID int64, bookingID string) (int, error) {
	if eventID <= 0 {
		return 0, fmt.Errorf("%w: event_id must be positive", model.ErrInvalidInput)
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return 0, fmt.Errorf("%w: booking_id is required", model.ErrInvalidInput)
	}

	released := 0
	err := inv.store.WithEventLock(ctx, eventID, func(ctx context.Context, tx SeatTx) error {
		n, err := tx.MarkFree(ctx, bookingID)
		released = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		inv.log.Debug("seats released",
			zap.Int64("event_id", eventID),
			zap.String("booking_id", bookingID),
			zap.Int("count", released))
	}
	return released, nil
}

// Event returns the event with its current free seat count.
func (inv *Inventory) Event(ctx context.Context, eventID int64) (*EventSummary, error) {
	if eventID <= 0 {
		return nil, fmt.Errorf("%w: event_id must be positive", model.ErrInvalidInput)
	}
	ev, err := inv.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	free, err := inv.store.CountFree(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &EventSummary{Event: *ev, FreeCount: free}, nil
}

func validate(eventID int64, count int) error {
	if eventID <= 0 {
		return fmt.Errorf("%w: event_id must be positive", model.ErrInvalidInput)
	}
	if count <= 0 {
		return fmt.Errorf("%w: ticket count must be positive", model.ErrInvalidInput)
	}
	return nil
}
