// Package saga runs an ordered list of steps, each with an optional
// compensating action, and unwinds committed steps in reverse order when a
// later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status represents the outcome of a saga run.
type Status string

const (
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusCompensated  Status = "compensated"
	StatusCompensating Status = "compensating"
	// StatusStuck means a compensation failed and manual repair is needed.
	StatusStuck Status = "stuck"
)

// Func is the signature of both forward and compensating actions.
type Func func(ctx context.Context) error

// Step is a single unit of work.  Compensate may be nil for steps that
// commit nothing (reads, validations).  Timeout, when set, bounds each
// call of Execute and Compensate.
type Step struct {
	Name       string
	Execute    Func
	Compensate Func
	Timeout    time.Duration
}

// Definition is a named, ordered list of steps.
type Definition struct {
	Name  string
	Steps []Step
}

// NewDefinition creates an empty saga definition.
func NewDefinition(name string) *Definition {
	return &Definition{Name: name}
}

// AddStep appends a step and returns the definition for chaining.
func (d *Definition) AddStep(step Step) *Definition {
	d.Steps = append(d.Steps, step)
	return d
}

// Instance is the record of one run.
type Instance struct {
	ID          string
	Saga        string
	Status      Status
	Completed   []string // forward steps that committed, in order
	Compensated []string // compensations that ran, in order
	FailedStep  string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// StepError wraps the error of the forward step that aborted the saga.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// CompensationError is returned when a compensating action fails.
// Compensation stops there so earlier steps keep their state for repair.
type CompensationError struct {
	Saga    string
	Step    string
	Trigger error
	Err     error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga %s: compensation of %s failed: %v (trigger: %v)", e.Saga, e.Step, e.Err, e.Trigger)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// Runner executes saga definitions.
type Runner struct {
	log *zap.Logger
}

// NewRunner returns a Runner that logs through log; nil disables logging.
func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log.Named("saga")}
}

// Run executes the steps of def in order.  The caller's cancellation is
// not propagated: once started, a saga runs forward or compensates to the
// end so it never leaves half-applied state behind.  Values carried by
// ctx remain visible to the steps.
//
// The returned error is nil on success, a *StepError when a forward step
// failed and every compensation succeeded, or a *CompensationError when
// a compensation failed.
func (r *Runner) Run(ctx context.Context, def *Definition) (*Instance, error) {
	ctx = context.WithoutCancel(ctx)
	inst := &Instance{
		ID:        uuid.NewString(),
		Saga:      def.Name,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	log := r.log.With(zap.String("saga", def.Name), zap.String("saga_id", inst.ID))

	cursor := 0
	var trigger error
	for i, step := range def.Steps {
		start := time.Now()
		if err := call(ctx, step.Timeout, step.Execute); err != nil {
			log.Warn("step failed",
				zap.String("step", step.Name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			inst.FailedStep = step.Name
			trigger = &StepError{Step: step.Name, Err: err}
			break
		}
		log.Debug("step completed", zap.String("step", step.Name), zap.Duration("duration", time.Since(start)))
		inst.Completed = append(inst.Completed, step.Name)
		cursor = i + 1
	}

	if trigger == nil {
		inst.Status = StatusCompleted
		inst.FinishedAt = time.Now()
		return inst, nil
	}

	inst.Status = StatusCompensating
	for i := cursor - 1; i >= 0; i-- {
		step := def.Steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := call(ctx, step.Timeout, step.Compensate); err != nil {
			log.Error("compensation failed",
				zap.String("step", step.Name),
				zap.NamedError("trigger", trigger),
				zap.Error(err))
			inst.Status = StatusStuck
			inst.FinishedAt = time.Now()
			return inst, &CompensationError{Saga: def.Name, Step: step.Name, Trigger: trigger, Err: err}
		}
		log.Info("step compensated", zap.String("step", step.Name))
		inst.Compensated = append(inst.Compensated, step.Name)
	}

	inst.Status = StatusCompensated
	inst.FinishedAt = time.Now()
	return inst, trigger
}

func call(ctx context.Context, timeout time.Duration, fn Func) error {
	if fn == nil {
		return errors.New("saga: step has no action")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
