package booking

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
)

// RetryPolicy controls how remote calls that are safe to repeat are retried.
// Only model.ErrUpstreamUnavailable failures are retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy retries three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsed:      15 * time.Second,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// remoteCall runs fn against a remote collaborator with a per-attempt
// timeout, retrying upstream failures according to the policy.  Errors
// that are not domain errors come back as model.ErrUpstreamUnavailable.
func remoteCall[T any](ctx context.Context, c *Coordinator, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(c.retry.backOff()),
		backoff.WithMaxTries(max(c.retry.MaxTries, 1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("retrying remote call", zap.String("op", op), zap.Duration("backoff", next), zap.Error(err))
		}),
	}
	if c.retry.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.retry.MaxElapsed))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		err = model.Upstream(op, err)
		if !errors.Is(err, model.ErrUpstreamUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return res, model.Upstream(op, err)
	}
	return res, nil
}

// ledgerCall runs a single ledger operation with the call timeout.
// Ledger writes are not retried.
func ledgerCall(ctx context.Context, c *Coordinator, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return model.Persistence(op, fn(callCtx))
}
