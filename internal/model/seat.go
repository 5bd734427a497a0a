package model

// SeatStatus is the allocation state of a single seat.
type SeatStatus string

const (
	SeatFree     SeatStatus = "FREE"
	SeatReserved SeatStatus = "RESERVED"
)

// Seat describes one numbered seat of an event.  Seats are uniquely
// identified by (EventID, SeatNumber).  BookingID is set exactly when
// the seat is RESERVED and names the booking that owns it.
//
// Fields:
//  EventID    – event to which this seat belongs.
//  SeatNumber – 1-based seat number within the event.
//  Status     – FREE or RESERVED.
//  BookingID  – owning booking id (nil while FREE).
type Seat struct {
	EventID    int64      // seats.event_id
	SeatNumber int        // seats.seat_number
	Status     SeatStatus // seats.status
	BookingID  *string    // seats.booking_id (nullable)
}

// IsFree reports whether the seat can be handed out by a reservation.
func (s Seat) IsFree() bool { return s.Status == SeatFree }
