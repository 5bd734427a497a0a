package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/event-booking/internal/model"
)

// SampleUsers and SampleEvents are the fixtures loaded by SeedSampleData.
var (
	SampleUsers = []model.User{
		{ID: 1, Name: "John Doe", Email: "john@example.com", Phone: "1234567890"},
		{ID: 2, Name: "Jane Smith", Email: "jane@example.com", Phone: "0987654321"},
		{ID: 3, Name: "Bob Johnson", Email: "bob@example.com", Phone: "5555555555"},
	}
	SampleEvents = []model.Event{
		{ID: 101, Name: "Concert in the Park", TotalSeats: 100},
		{ID: 102, Name: "Tech Conference", TotalSeats: 150},
	}
)

// UserSeeder is implemented by UserRepo and MemoryUserRepo.
type UserSeeder interface {
	Create(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// EventSeeder is implemented by EventRepo and MemorySeatRepo.
type EventSeeder interface {
	CreateEvent(ctx context.Context, ev *model.Event) error
	EventExists(ctx context.Context, eventID int64) (bool, error)
}

// SeedSampleData inserts the sample users and events that are not yet
// present.  It is safe to call on every start.
func SeedSampleData(ctx context.Context, users UserSeeder, events EventSeeder) error {
	for _, u := range SampleUsers {
		_, err := users.GetUser(ctx, u.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrUserNotFound) {
			return fmt.Errorf("seed user %d: %w", u.ID, err)
		}
		u := u
		if err := users.Create(ctx, &u); err != nil {
			return fmt.Errorf("seed user %d: %w", u.ID, err)
		}
	}
	for _, ev := range SampleEvents {
		ok, err := events.EventExists(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("seed event %d: %w", ev.ID, err)
		}
		if ok {
			continue
		}
		ev := ev
		if err := events.CreateEvent(ctx, &ev); err != nil {
			return fmt.Errorf("seed event %d: %w", ev.ID, err)
		}
	}
	return nil
}
