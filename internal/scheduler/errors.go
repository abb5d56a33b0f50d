package scheduler

import "errors"

// Errors returned by the scheduler and its queue backends.
var (
	// ErrQueueFull is returned by Submit when the in-process queue is at
	// capacity and no durable backend is configured. Retryable after backoff.
	ErrQueueFull = errors.New("task queue is full")

	// ErrBackendUnavailable is returned when a configured durable backend
	// cannot be reached at submit or dequeue time.
	ErrBackendUnavailable = errors.New("queue backend unavailable")

	// ErrBackendEmpty is returned by Backend.Dequeue when the polled
	// priority level holds no entries. Not an operational error.
	ErrBackendEmpty = errors.New("queue backend empty")

	// ErrBackendMiss is returned by Backend.Get when no metadata exists for
	// the requested task, either never written or expired.
	ErrBackendMiss = errors.New("task metadata not found")

	// ErrNotFound is returned by GetStatus for unknown or purged task IDs.
	ErrNotFound = errors.New("task not found")

	// ErrSchedulerStopped is returned by Submit after Stop has been called.
	ErrSchedulerStopped = errors.New("scheduler is stopped")

	// ErrRetriesExhausted is returned by Submit when a resubmission would
	// exceed the task's max retries.
	ErrRetriesExhausted = errors.New("max retries exhausted")
)
