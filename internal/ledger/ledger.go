// Package ledger records bookings and guards their status transitions.
// A booking row is written PENDING before any seat is touched, which makes
// the ledger the place an operator looks to repair a half-finished saga.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/model"
)

// Store is the persistence contract of the ledger.  UpdateStatus and
// DeletePending are compare-and-set operations: they return
// model.ErrInvalidTransition when the row is not in the expected status
// and model.ErrBookingNotFound when it does not exist.
type Store interface {
	Insert(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, seatNumbers []int, at time.Time) error
	DeletePending(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status model.BookingStatus, before time.Time, limit int) ([]model.Booking, error)
}

// Ledger is the booking ledger service.
type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
}

// New returns a Ledger over store.
func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID: uuid.NewString,
	}
}

// Create records a new PENDING booking and returns its id.
func (l *Ledger) Create(ctx context.Context, userID, eventID int64, ticketCount int) (string, error) {
	if userID <= 0 || eventID <= 0 || ticketCount <= 0 {
		return "", fmt.Errorf("%w: user_id, event_id and ticket_count must be positive", model.ErrInvalidInput)
	}
	now := l.now()
	b := &model.Booking{
		ID:          l.newID(),
		UserID:      userID,
		EventID:     eventID,
		TicketCount: ticketCount,
		Status:      model.BookingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.Insert(ctx, b); err != nil {
		return "", model.Persistence("create booking", err)
	}
	return b.ID, nil
}

// Get returns the booking with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (*model.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.ErrBookingNotFound
	}
	b, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, model.Persistence("get booking", err)
	}
	return b, nil
}

// SetStatus moves a booking to status.  Confirming requires exactly
// ticket_count seat numbers; CANCELLED and FAILED drop the seat numbers.
func (l *Ledger) SetStatus(ctx context.Context, id string, status model.BookingStatus, seatNumbers []int) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, status)
	}
	cur, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, cur.Status, status)
	}
	switch status {
	case model.BookingConfirmed:
		if len(seatNumbers) != cur.TicketCount {
			return fmt.Errorf("%w: confirming %d tickets with %d seats", model.ErrInvalidInput, cur.TicketCount, len(seatNumbers))
		}
	default:
		seatNumbers = nil
	}
	if err := l.store.UpdateStatus(ctx, id, cur.Status, status, seatNumbers, l.now()); err != nil {
		return model.Persistence("update booking status", err)
	}
	return nil
}

// Delete removes a booking that never left PENDING.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if err := l.store.DeletePending(ctx, id); err != nil {
		return model.Persistence("delete booking", err)
	}
	return nil
}

// Stale lists bookings still PENDING after olderThan.  A saga never leaves
// a booking PENDING once it returns, so these belong to a process that
// died mid-saga and need reconciliation.
func (l *Ledger) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := l.store.ListByStatus(ctx, model.BookingPending, l.now().Add(-olderThan), limit)
	if err != nil {
		return nil, model.Persistence("list stale bookings", err)
	}
	return out, nil
}
