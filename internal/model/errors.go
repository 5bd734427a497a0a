package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer.  Repositories and services wrap
// them with fmt.Errorf("%w") so handlers can classify failures with
// errors.Is without knowing where they came from.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUserNotFound          = errors.New("user not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrInsufficientInventory = errors.New("not enough seats available")
	ErrReservationConflict   = errors.New("reservation conflict")
	ErrAlreadyCancelled      = errors.New("booking already cancelled")
	ErrInvalidTransition     = errors.New("invalid booking status transition")
	ErrReleaseRejected       = errors.New("seat release rejected")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrPersistenceFailure    = errors.New("persistence failure")
	ErrCompensationFailure   = errors.New("compensation failure")
)

// Error kinds as exposed to API clients.
const (
	KindInvalidInput          = "invalid_input"
	KindUserNotFound          = "user_not_found"
	KindEventNotFound         = "event_not_found"
	KindBookingNotFound       = "booking_not_found"
	KindInsufficientInventory = "insufficient_inventory"
	KindReservationConflict   = "reservation_conflict"
	KindAlreadyCancelled      = "already_cancelled"
	KindInvalidTransition     = "invalid_transition"
	KindReleaseRejected       = "release_rejected"
	KindUpstreamUnavailable   = "upstream_unavailable"
	KindPersistenceFailure    = "persistence_failure"
	KindCompensationFailure   = "compensation_failure"
	KindInternal              = "internal_error"
)

// InsufficientInventoryError is returned when an event has fewer free
// seats than a booking asks for.
type InsufficientInventoryError struct {
	EventID   int64
	Requested int
	Free      int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("not enough seats available for event %d: requested %d, free %d", e.EventID, e.Requested, e.Free)
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventory }

// CompensationError reports a saga whose rollback did not complete.  The
// booking and event ids let an operator find the partial state.  Trigger
// is the failure that started the rollback; Err is the compensation that
// failed.
type CompensationError struct {
	BookingID string
	EventID   int64
	Step      string
	Trigger   error
	Err       error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of %q failed for booking %s (event %d): %v (triggered by: %v)",
		e.Step, e.BookingID, e.EventID, e.Err, e.Trigger)
}

func (e *CompensationError) Is(target error) bool { return target == ErrCompensationFailure }

func (e *CompensationError) Unwrap() error { return e.Err }

// Upstream marks err as a failure of a remote collaborator.  Domain
// errors pass through untouched so callers keep their meaning.
func Upstream(op string, err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// Persistence marks err as a storage failure, passing domain errors through.
func Persistence(op string, err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailure, err)
}

// IsDomainError reports whether err is an expected business outcome as
// opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrUserNotFound, ErrEventNotFound, ErrBookingNotFound,
		ErrInsufficientInventory, ErrReservationConflict, ErrAlreadyCancelled,
		ErrInvalidTransition, ErrReleaseRejected, ErrCompensationFailure,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// KindOf classifies err into one of the Kind* constants.  A compensation
// failure wins over whatever it wraps.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCompensationFailure):
		return KindCompensationFailure
	case errors.Is(err, ErrUserNotFound):
		return KindUserNotFound
	case errors.Is(err, ErrEventNotFound):
		return KindEventNotFound
	case errors.Is(err, ErrBookingNotFound):
		return KindBookingNotFound
	case errors.Is(err, ErrInsufficientInventory):
		return KindInsufficientInventory
	case errors.Is(err, ErrReservationConflict):
		return KindReservationConflict
	case errors.Is(err, ErrAlreadyCancelled):
		return KindAlreadyCancelled
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrReleaseRejected):
		return KindReleaseRejected
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrPersistenceFailure):
		return KindPersistenceFailure
	}
	return KindInternal
}
