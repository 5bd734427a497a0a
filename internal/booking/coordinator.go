// Package booking orchestrates the booking saga across the user directory,
// the seat inventory and the booking ledger.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/saga"
)

const defaultCallTimeout = 3 * time.Second

// CreateBookingRequest is the input of CreateBooking.
type CreateBookingRequest struct {
	UserID      int64
	EventID     int64
	TicketCount int
}

// Validate rejects requests with missing or non-positive fields.
func (r CreateBookingRequest) Validate() error {
	if r.UserID <= 0 || r.EventID <= 0 || r.TicketCount <= 0 {
		return fmt.Errorf("%w: missing required fields: user_id, event_id, ticket_count", model.ErrInvalidInput)
	}
	return nil
}

// Coordinator runs the create and cancel sagas.  It holds no mutable
// state of its own and is safe for concurrent use.
type Coordinator struct {
	users       UserDirectory
	inventory   EventInventory
	ledger      Ledger
	notifier    Notifier
	runner      *saga.Runner
	log         *zap.Logger
	callTimeout time.Duration
	retry       RetryPolicy
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithNotifier sets where booking events are published.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithCallTimeout bounds every single call to a collaborator.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Coordinator) { c.retry = p }
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(users UserDirectory, inventory EventInventory, ledger Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		users:       users,
		inventory:   inventory,
		ledger:      ledger,
		notifier:    nopNotifier{},
		log:         zap.NewNop(),
		callTimeout: defaultCallTimeout,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("booking")
	c.runner = saga.NewRunner(c.log)
	return c
}

// CreateBooking verifies the user, checks availability, records a PENDING
// booking, reserves seats and confirms the booking.  If a step fails the
// steps already committed are compensated in reverse order and the
// failure is returned; nothing of the booking remains visible.  If a
// compensation fails a *model.CompensationError is returned instead.
func (c *Coordinator) CreateBooking(ctx context.Context, req CreateBookingRequest) (*model.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		bookingID string
		seats     []int
	)
	def := saga.NewDefinition("create-booking").
		AddStep(saga.Step{
			Name: "verify-user",
			Execute: func(ctx context.Context) error {
				_, err := remoteCall(ctx, c, "get user", func(ctx context.Context) (*model.User, error) {
					return c.users.GetUser(ctx, req.UserID)
				})
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "check-availability",
			Execute: func(ctx context.Context) error {
				av, err := remoteCall(ctx, c, "check availability", func(ctx context.Context) (model.Availability, error) {
					return c.inventory.CheckAvailability(ctx, req.EventID, req.TicketCount)
				})
				if err != nil {
					return err
				}
				if !av.Available {
					return &model.InsufficientInventoryError{EventID: req.EventID, Requested: req.TicketCount, Free: av.FreeCount}
				}
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "record-pending",
			Execute: func(ctx context.Context) error {
				return ledgerCall(ctx, c, "create booking", func(ctx context.Context) error {
					id, err := c.ledger.Create(ctx, req.UserID, req.EventID, req.TicketCount)
					bookingID = id
					return err
				})
			},
			Compensate: func(ctx context.Context) error {
				return c.discardPending(ctx, bookingID)
			},
		}).
		AddStep(saga.Step{
			Name: "reserve-seats",
			Execute: func(ctx context.Context) error {
				// Reserve is idempotent per booking id, so a retry after an
				// ambiguous failure returns the seats already taken.
				got, err := remoteCall(ctx, c, "reserve seats", func(ctx context.Context) ([]int, error) {
					return c.inventory.Reserve(ctx, req.EventID, req.TicketCount, bookingID)
				})
				seats = got
				return err
			},
			Compensate: func(ctx context.Context) error {
				// A CONFIRMED booking owns its seats; never free them here.
				if c.confirmed(ctx, bookingID) {
					return fmt.Errorf("%w: booking %s is already confirmed", model.ErrInvalidTransition, bookingID)
				}
				_, err := remoteCall(ctx, c, "release seats", func(ctx context.Context) (int, error) {
					return c.inventory.Release(ctx, req.EventID, bookingID)
				})
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "confirm-booking",
			Execute: func(ctx context.Context) error {
				err := ledgerCall(ctx, c, "confirm booking", func(ctx context.Context) error {
					return c.ledger.SetStatus(ctx, bookingID, model.BookingConfirmed, seats)
				})
				// The write may have committed even though the call failed.
				if err != nil && c.confirmed(ctx, bookingID) {
					c.log.Warn("confirm reported an error but the booking is confirmed",
						zap.String("booking_id", bookingID), zap.Error(err))
					return nil
				}
				return err
			},
		})

	if _, err := c.runner.Run(ctx, def); err != nil {
		return nil, c.sagaFailure(err, bookingID, req.EventID)
	}

	log := c.log.With(zap.String("booking_id", bookingID), zap.Int64("event_id", req.EventID))
	log.Info("booking confirmed", zap.Int64("user_id", req.UserID), zap.Ints("seats", seats))

	ctx = context.WithoutCancel(ctx)
	var b *model.Booking
	err := ledgerCall(ctx, c, "get booking", func(ctx context.Context) error {
		var err error
		b, err = c.ledger.Get(ctx, bookingID)
		return err
	})
	if err != nil {
		log.Warn("reading confirmed booking failed", zap.Error(err))
		now := time.Now().UTC()
		b = &model.Booking{
			ID:          bookingID,
			UserID:      req.UserID,
			EventID:     req.EventID,
			TicketCount: req.TicketCount,
			Status:      model.BookingConfirmed,
			SeatNumbers: seats,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	c.notify(ctx, "booking.confirmed", b, c.notifier.BookingConfirmed)
	return b, nil
}

// GetBooking returns the booking with the given id.
func (c *Coordinator) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	var b *model.Booking
	err := ledgerCall(ctx, c, "get booking", func(ctx context.Context) error {
		var err error
		b, err = c.ledger.Get(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelBooking releases the seats of a CONFIRMED booking and marks it
// CANCELLED.  If the release fails the booking stays CONFIRMED and the
// call can be repeated.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := c.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case model.BookingConfirmed:
	case model.BookingCancelled:
		return nil, model.ErrAlreadyCancelled
	default:
		return nil, fmt.Errorf("%w: booking is %s", model.ErrInvalidTransition, b.Status)
	}

	released := 0
	def := saga.NewDefinition("cancel-booking").
		AddStep(saga.Step{
			Name: "release-seats",
			Execute: func(ctx context.Context) error {
				n, err := remoteCall(ctx, c, "release seats", func(ctx context.Context) (int, error) {
					return c.inventory.Release(ctx, b.EventID, b.ID)
				})
				if err != nil {
					if model.IsDomainError(err) {
						return fmt.Errorf("%w: %v", model.ErrReleaseRejected, err)
					}
					return err
				}
				released = n
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "mark-cancelled",
			Execute: func(ctx context.Context) error {
				err := ledgerCall(ctx, c, "cancel booking", func(ctx context.Context) error {
					return c.ledger.SetStatus(ctx, b.ID, model.BookingCancelled, nil)
				})
				if errors.Is(err, model.ErrInvalidTransition) {
					if cur, gerr := c.ledger.Get(ctx, b.ID); gerr == nil && cur.Status == model.BookingCancelled {
						return model.ErrAlreadyCancelled
					}
				}
				return err
			},
		})

	if _, err := c.runner.Run(ctx, def); err != nil {
		return nil, c.sagaFailure(err, b.ID, b.EventID)
	}

	c.log.Info("booking cancelled",
		zap.String("booking_id", b.ID),
		zap.Int64("event_id", b.EventID),
		zap.Int("released", released))

	b.Status = model.BookingCancelled
	b.SeatNumbers = nil
	b.UpdatedAt = time.Now().UTC()
	c.notify(context.WithoutCancel(ctx), "booking.cancelled", b, c.notifier.BookingCancelled)
	return b, nil
}

// confirmed reports whether the ledger holds bookingID as CONFIRMED.  A
// failed read counts as not confirmed.
func (c *Coordinator) confirmed(ctx context.Context, bookingID string) bool {
	var b *model.Booking
	err := ledgerCall(ctx, c, "get booking", func(ctx context.Context) error {
		var err error
		b, err = c.ledger.Get(ctx, bookingID)
		return err
	})
	return err == nil && b.Status == model.BookingConfirmed
}

// discardPending removes the PENDING booking written by the saga.  When the
// delete fails the booking is marked FAILED so it is never left PENDING.
func (c *Coordinator) discardPending(ctx context.Context, bookingID string) error {
	err := ledgerCall(ctx, c, "delete booking", func(ctx context.Context) error {
		return c.ledger.Delete(ctx, bookingID)
	})
	if err == nil || errors.Is(err, model.ErrBookingNotFound) {
		return nil
	}
	c.log.Warn("deleting pending booking failed, marking it failed",
		zap.String("booking_id", bookingID), zap.Error(err))
	ferr := ledgerCall(ctx, c, "mark booking failed", func(ctx context.Context) error {
		return c.ledger.SetStatus(ctx, bookingID, model.BookingFailed, nil)
	})
	if ferr != nil {
		return fmt.Errorf("delete: %v; mark failed: %w", err, ferr)
	}
	return nil
}

// sagaFailure turns a saga error into the error reported to the caller.
func (c *Coordinator) sagaFailure(err error, bookingID string, eventID int64) error {
	var compErr *saga.CompensationError
	if errors.As(err, &compErr) {
		trigger := compErr.Trigger
		var stepErr *saga.StepError
		if errors.As(trigger, &stepErr) {
			trigger = stepErr.Err
		}
		c.log.Error("booking needs manual reconciliation",
			zap.String("booking_id", bookingID),
			zap.Int64("event_id", eventID),
			zap.String("step", compErr.Step),
			zap.NamedError("trigger", trigger),
			zap.Error(compErr.Err))
		return &model.CompensationError{
			BookingID: bookingID,
			EventID:   eventID,
			Step:      compErr.Step,
			Trigger:   trigger,
			Err:       compErr.Err,
		}
	}
	var stepErr *saga.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Err
	}
	return err
}

func (c *Coordinator) notify(ctx context.Context, topic string, b *model.Booking, fn func(context.Context, *model.Booking) error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := fn(ctx, b); err != nil {
		c.log.Warn("publishing booking event failed",
			zap.String("topic", topic),
			zap.String("booking_id", b.ID),
			zap.Error(err))
	}
}
