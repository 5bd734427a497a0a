package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingFailed    BookingStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a booking in status s may move to next.
// PENDING may become CONFIRMED or FAILED, CONFIRMED may become CANCELLED.
// CANCELLED and FAILED are terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingFailed
	case BookingConfirmed:
		return next == BookingCancelled
	}
	return false
}

// Booking records one user's request for a number of tickets to an
// event.  A booking is created PENDING before any seat is touched and
// acts as the recovery anchor for the saga that reserves its seats.
//
// Fields:
//  ID          – booking identifier (UUID).
//  UserID      – user who made the booking.
//  EventID     – event being booked.
//  TicketCount – number of seats requested (> 0).
//  Status      – PENDING, CONFIRMED, CANCELLED or FAILED.
//  SeatNumbers – seats held by the booking while CONFIRMED.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last status change.
type Booking struct {
	ID          string        // bookings.id
	UserID      int64         // bookings.user_id
	EventID     int64         // bookings.event_id
	TicketCount int           // bookings.ticket_count
	Status      BookingStatus // bookings.status
	SeatNumbers []int         // bookings.seat_numbers (JSON array)
	CreatedAt   time.Time     // bookings.created_at
	UpdatedAt   time.Time     // bookings.updated_at
}

// Clone returns a deep copy so callers can't mutate stored state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	cp := *b
	if b.SeatNumbers != nil {
		cp.SeatNumbers = append([]int(nil), b.SeatNumbers...)
	}
	return &cp
}
