package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/model"
)

// MemorySeatRepo is an in-process inventory.Store.  Each event carries
// its own mutex, so reservations on different events never contend.
type MemorySeatRepo struct {
	mu     sync.RWMutex
	events map[int64]*memEvent
	nextID int64
}

type memEvent struct {
	mu    sync.Mutex
	event model.Event
	seats []model.Seat // index i holds seat number i+1
}

func NewMemorySeatRepo() *MemorySeatRepo {
	return &MemorySeatRepo{events: make(map[int64]*memEvent)}
}

// CreateEvent adds an event with seats 1..TotalSeats, all FREE.  A zero
// ev.ID is replaced with the next free id.
func (r *MemorySeatRepo) CreateEvent(_ context.Context, ev *model.Event) error {
	if ev.TotalSeats <= 0 {
		return fmt.Errorf("%w: total_seats must be positive", model.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ID == 0 {
		r.nextID++
		for r.events[r.nextID] != nil {
			r.nextID++
		}
		ev.ID = r.nextID
	} else if r.events[ev.ID] != nil {
		return fmt.Errorf("event %d already exists", ev.ID)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	seats := make([]model.Seat, ev.TotalSeats)
	for i := range seats {
		seats[i] = model.Seat{EventID: ev.ID, SeatNumber: i + 1, Status: model.SeatFree}
	}
	r.events[ev.ID] = &memEvent{event: *ev, seats: seats}
	return nil
}

func (r *MemorySeatRepo) lookup(eventID int64) (*memEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	me, ok := r.events[eventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return me, nil
}

func (r *MemorySeatRepo) GetEvent(_ context.Context, eventID int64) (*model.Event, error) {
	me, err := r.lookup(eventID)
	if err != nil {
		return nil, err
	}
	ev := me.event
	return &ev, nil
}

func (r *MemorySeatRepo) CountFree(_ context.Context, eventID int64) (int, error) {
	me, err := r.lookup(eventID)
	if err != nil {
		return 0, err
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.countFree(), nil
}

// ListSeats returns a copy of every seat of an event.
func (r *MemorySeatRepo) ListSeats(_ context.Context, eventID int64) ([]model.Seat, error) {
	me, err := r.lookup(eventID)
	if err != nil {
		return nil, err
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	out := make([]model.Seat, len(me.seats))
	for i, s := range me.seats {
		out[i] = s
		if s.BookingID != nil {
			id := *s.BookingID
			out[i].BookingID = &id
		}
	}
	return out, nil
}

// WithEventLock holds the event mutex while fn runs.  Writes are staged
// on a copy of the seat slice and applied only when fn returns nil.
func (r *MemorySeatRepo) WithEventLock(ctx context.Context, eventID int64, fn func(ctx context.Context, tx inventory.SeatTx) error) error {
	me, err := r.lookup(eventID)
	if err != nil {
		return err
	}
	me.mu.Lock()
	defer me.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := make([]model.Seat, len(me.seats))
	copy(staged, me.seats)
	tx := &memSeatTx{seats: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	me.seats = staged
	return nil
}

func (me *memEvent) countFree() int {
	n := 0
	for _, s := range me.seats {
		if s.IsFree() {
			n++
		}
	}
	return n
}

type memSeatTx struct {
	seats []model.Seat
}

func (t *memSeatTx) SeatsOwnedBy(_ context.Context, bookingID string) ([]int, error) {
	var out []int
	for _, s := range t.seats {
		if s.Status == model.SeatReserved && s.BookingID != nil && *s.BookingID == bookingID {
			out = append(out, s.SeatNumber)
		}
	}
	return out, nil
}

func (t *memSeatTx) FreeSeats(_ context.Context, limit int) ([]int, error) {
	var out []int
	for _, s := range t.seats {
		if len(out) >= limit {
			break
		}
		if s.IsFree() {
			out = append(out, s.SeatNumber)
		}
	}
	return out, nil
}

func (t *memSeatTx) CountFree(_ context.Context) (int, error) {
	n := 0
	for _, s := range t.seats {
		if s.IsFree() {
			n++
		}
	}
	return n, nil
}

func (t *memSeatTx) MarkReserved(_ context.Context, seatNumbers []int, bookingID string) error {
	sorted := append([]int(nil), seatNumbers...)
	sort.Ints(sorted)
	for _, n := range sorted {
		if n < 1 || n > len(t.seats) || !t.seats[n-1].IsFree() {
			return fmt.Errorf("%w: seat %d is not free", model.ErrReservationConflict, n)
		}
	}
	for _, n := range sorted {
		id := bookingID
		t.seats[n-1].Status = model.SeatReserved
		t.seats[n-1].BookingID = &id
	}
	return nil
}

func (t *memSeatTx) MarkFree(_ context.Context, bookingID string) (int, error) {
	n := 0
	for i := range t.seats {
		s := &t.seats[i]
		if s.Status == model.SeatReserved && s.BookingID != nil && *s.BookingID == bookingID {
			s.Status = model.SeatFree
			s.BookingID = nil
			n++
		}
	}
	return n, nil
}

// EventExists reports whether the event is known.
func (r *MemorySeatRepo) EventExists(_ context.Context, eventID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.events[eventID]
	return ok, nil
}
