package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

func (r *recorder) step(name string, fwdErr, compErr error) Step {
	return Step{
		Name: name,
		Execute: func(ctx context.Context) error {
			r.calls = append(r.calls, "do:"+name)
			return fwdErr
		},
		Compensate: func(ctx context.Context) error {
			r.calls = append(r.calls, "undo:"+name)
			return compErr
		},
	}
}

func TestRunner_Run_Success(t *testing.T) {
	rec := &recorder{}
	def := NewDefinition("ok").
		AddStep(rec.step("a", nil, nil)).
		AddStep(rec.step("b", nil, nil))

	inst, err := NewRunner(nil).Run(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, inst.Status)
	assert.Equal(t, []string{"a", "b"}, inst.Completed)
	assert.Equal(t, []string{"do:a", "do:b"}, rec.calls)
	assert.NotEmpty(t, inst.ID)
}

func TestRunner_Run_CompensatesCommittedStepsInReverse(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	def := NewDefinition("rollback").
		AddStep(rec.step("a", nil, nil)).
		AddStep(rec.step("b", nil, nil)).
		AddStep(rec.step("c", boom, nil))

	inst, err := NewRunner(nil).Run(context.Background(), def)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "c", stepErr.Step)

	// the failing step is never compensated
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, rec.calls)
	assert.Equal(t, StatusCompensated, inst.Status)
	assert.Equal(t, "c", inst.FailedStep)
	assert.Equal(t, []string{"b", "a"}, inst.Compensated)
}

func TestRunner_Run_SkipsStepsWithoutCompensation(t *testing.T) {
	rec := &recorder{}
	readOnly := Step{Name: "read", Execute: func(context.Context) error {
		rec.calls = append(rec.calls, "do:read")
		return nil
	}}
	def := NewDefinition("mixed").
		AddStep(readOnly).
		AddStep(rec.step("write", nil, nil)).
		AddStep(rec.step("fail", errors.New("x"), nil))

	_, err := NewRunner(nil).Run(context.Background(), def)

	require.Error(t, err)
	assert.Equal(t, []string{"do:read", "do:write", "do:fail", "undo:write"}, rec.calls)
}

func TestRunner_Run_CompensationFailureStops(t *testing.T) {
	trigger := errors.New("confirm failed")
	undoErr := errors.New("release failed")
	rec := &recorder{}
	def := NewDefinition("stuck").
		AddStep(rec.step("a", nil, nil)).
		AddStep(rec.step("b", nil, undoErr)).
		AddStep(rec.step("c", trigger, nil))

	inst, err := NewRunner(nil).Run(context.Background(), def)

	var compErr *CompensationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "b", compErr.Step)
	assert.ErrorIs(t, compErr.Trigger, trigger)
	assert.ErrorIs(t, err, undoErr)
	assert.Equal(t, StatusStuck, inst.Status)
	// a keeps its state so the failure can be repaired
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b"}, rec.calls)
}

func TestRunner_Run_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	def := NewDefinition("detached").AddStep(Step{
		Name: "check",
		Execute: func(ctx context.Context) error {
			sawErr = ctx.Err()
			return nil
		},
	})

	_, err := NewRunner(nil).Run(ctx, def)

	require.NoError(t, err)
	assert.NoError(t, sawErr)
}

func TestRunner_Run_StepTimeout(t *testing.T) {
	def := NewDefinition("slow").AddStep(Step{
		Name:    "wait",
		Timeout: 10 * time.Millisecond,
		Execute: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	_, err := NewRunner(nil).Run(context.Background(), def)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
