package repository

import (
	"database/sql"

	"github.com/iliyamo/event-booking/internal/inventory"
	"github.com/iliyamo/event-booking/internal/ledger"
)

// Stores bundles one backend's repositories.
type Stores struct {
	Users    UserSeeder
	Events   EventSeeder
	Seats    inventory.Store
	Bookings ledger.Store
}

// NewMySQLStores returns repositories backed by db.
func NewMySQLStores(db *sql.DB) Stores {
	return Stores{
		Users:    NewUserRepo(db),
		Events:   NewEventRepo(db),
		Seats:    NewSeatRepo(db),
		Bookings: NewBookingRepo(db),
	}
}

// NewMemoryStores returns process-local repositories.  Events and seats
// share one MemorySeatRepo.
func NewMemoryStores() Stores {
	seats := NewMemorySeatRepo()
	return Stores{
		Users:    NewMemoryUserRepo(),
		Events:   seats,
		Seats:    seats,
		Bookings: NewMemoryBookingRepo(),
	}
}
