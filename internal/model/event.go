package model

import "time"

// Event is a bookable occurrence with a fixed seat capacity.  Events
// are immutable once created; seats are generated alongside the event
// and numbered 1..TotalSeats.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – display name of the event.
//  TotalSeats – capacity, equal to the number of seat rows.
//  CreatedAt  – creation timestamp.
type Event struct {
	ID         int64     `json:"id"`          // events.id
	Name       string    `json:"name"`        // events.name
	TotalSeats int       `json:"total_seats"` // events.total_seats
	CreatedAt  time.Time `json:"created_at"`  // events.created_at
}

// Availability is the answer to an availability probe.  Available is
// true when FreeCount covers the requested ticket count.
type Availability struct {
	Available bool `json:"available"`
	FreeCount int  `json:"free_count"`
}
