package scheduler

import (
	"context"
	"encoding/json"
)

// ProgressFunc reports execution progress as a 0-100 percentage. Reports
// are clamped and monotonically non-decreasing; calls after finalization
// are ignored.
type ProgressFunc func(percent int)

// Executor is the execution body for one task type. Implementations are
// registered on the scheduler before Start and invoked by workers with a
// context bounded by the task's timeout. Cancellation is cooperative: the
// engine cannot preempt a body that ignores ctx, it only abandons it.
type Executor interface {
	Execute(ctx context.Context, task *Task, progress ProgressFunc) (json.RawMessage, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task, progress ProgressFunc) (json.RawMessage, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *Task, progress ProgressFunc) (json.RawMessage, error) {
	return f(ctx, task, progress)
}
