package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// MemoryBookingRepo keeps bookings in a map guarded by a RWMutex.  Values
// are copied on the way in and out.
type MemoryBookingRepo struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
}

func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (r *MemoryBookingRepo) Insert(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[b.ID]; ok {
		return model.ErrInvalidTransition
	}
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *MemoryBookingRepo) GetByID(_ context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (r *MemoryBookingRepo) UpdateStatus(_ context.Context, id string, from, to model.BookingStatus, seatNumbers []int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return model.ErrBookingNotFound
	}
	if b.Status != from {
		return model.ErrInvalidTransition
	}
	b.Status = to
	b.SeatNumbers = append([]int(nil), seatNumbers...)
	if len(seatNumbers) == 0 {
		b.SeatNumbers = nil
	}
	b.UpdatedAt = at
	return nil
}

func (r *MemoryBookingRepo) DeletePending(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return model.ErrBookingNotFound
	}
	if b.Status != model.BookingPending {
		return model.ErrInvalidTransition
	}
	delete(r.bookings, id)
	return nil
}

func (r *MemoryBookingRepo) ListByStatus(_ context.Context, status model.BookingStatus, before time.Time, limit int) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Booking
	for _, b := range r.bookings {
		if b.Status == status && b.CreatedAt.Before(before) {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
