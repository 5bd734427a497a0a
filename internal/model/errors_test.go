package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped user not found", fmt.Errorf("lookup: %w", ErrUserNotFound), KindUserNotFound},
		{"insufficient", &InsufficientInventoryError{EventID: 1, Requested: 3, Free: 1}, KindInsufficientInventory},
		{"upstream", Upstream("reserve", context.DeadlineExceeded), KindUpstreamUnavailable},
		{"persistence", Persistence("insert", errors.New("disk full")), KindPersistenceFailure},
		{"compensation wins", &CompensationError{Err: ErrBookingNotFound, Trigger: ErrPersistenceFailure}, KindCompensationFailure},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUpstream_PassesDomainErrorsThrough(t *testing.T) {
	err := Upstream("reserve", ErrEventNotFound)
	assert.Same(t, ErrEventNotFound, err)

	wrapped := Upstream("reserve", errors.New("connection refused"))
	assert.ErrorIs(t, wrapped, ErrUpstreamUnavailable)
	assert.Nil(t, Upstream("reserve", nil))
}

func TestCompensationError(t *testing.T) {
	cause := errors.New("release failed")
	err := &CompensationError{BookingID: "b1", EventID: 7, Step: "reserve-seats", Trigger: ErrPersistenceFailure, Err: cause}

	assert.ErrorIs(t, err, ErrCompensationFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "b1")
	assert.Contains(t, err.Error(), "event 7")
}
