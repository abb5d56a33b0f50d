package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// worker is one execution loop. It dequeues, runs, and finalizes tasks
// until the run context is cancelled. An empty queue is handled by a
// bounded wait, never a busy-spin.
func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	logger := s.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		// Fast-exit check so shutdown wins over queued work.
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped")
			return
		default:
		}

		task, ok := s.dequeue(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				logger.Debug("worker stopped")
				return
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		s.runTask(ctx, task, id)
	}
}

// dequeue pulls the next task from the configured queue store.
func (s *Scheduler) dequeue(ctx context.Context) (*Task, bool) {
	if s.durable != nil {
		task, ok := s.durable.Dequeue(ctx)
		if !ok {
			return nil, false
		}
		return s.adoptDurable(task)
	}

	task, ok := s.queue.Dequeue()
	if ok {
		s.queueDepth.Store(int64(s.queue.Len()))
	}
	return task, ok
}

// adoptDurable reconciles a task popped from the durable backend with the
// local registry. Tasks submitted by this process are already registered;
// tasks submitted by another process are adopted into the active map so
// the rest of the lifecycle is uniform.
func (s *Scheduler) adoptDurable(task *Task) (*Task, bool) {
	id := task.ID.String()
	if _, ok := s.registry.Get(id); ok {
		return task, true
	}
	if task.Status.Terminal() {
		// Cancelled or finalized by another process after enqueue; drop.
		return nil, false
	}
	task.Status = StatusQueued
	s.registry.Add(task)
	return task, true
}

type execOutcome struct {
	result json.RawMessage
	err    error
}

// runTask transitions the task to Processing, invokes its executor under
// the task timeout, and finalizes exactly once. A body that ignores its
// context is abandoned at timeout: the worker moves on while the goroutine
// drains in the background.
func (s *Scheduler) runTask(ctx context.Context, task *Task, workerID int) {
	id := task.ID.String()
	logger := s.logger.With(
		"task_id", task.ID,
		"task_type", task.Type,
		"worker_id", workerID,
	)

	started := time.Now().UTC()
	if ok := s.registry.Update(id, func(t *Task) {
		t.Status = StatusProcessing
		t.StartedAt = &started
	}); !ok {
		// Cancelled while queued; the queue entry is stale.
		logger.Debug("skipping task no longer queued")
		return
	}

	executor, ok := s.executors[task.Type]
	if !ok {
		s.finalize(ctx, id, started, logger, func(t *Task) {
			t.Status = StatusFailed
			t.Error = fmt.Sprintf("no executor registered for task type %q", task.Type)
		})
		return
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = PolicyFor(task.Type).Timeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Expose the cancel func so Cancel can signal the body mid-flight.
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}()

	progress := func(percent int) {
		if percent < 0 {
			percent = 0
		} else if percent > 100 {
			percent = 100
		}
		s.registry.Update(id, func(t *Task) {
			if t.Status == StatusProcessing && percent > t.Progress {
				t.Progress = percent
			}
		})
	}

	logger.Info("processing task", "priority", task.Priority.String(), "timeout", timeout)

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in task executor",
					"panic", r,
					"stack", string(debug.Stack()))
				done <- execOutcome{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		result, err := executor.Execute(taskCtx, task.Clone(), progress)
		done <- execOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-done:
		s.finalizeOutcome(ctx, id, started, timeout, taskCtx, outcome, logger)
	case <-taskCtx.Done():
		// The body has not returned; abandon it and finalize from here.
		if taskCtx.Err() == context.DeadlineExceeded {
			s.finalize(ctx, id, started, logger, func(t *Task) {
				t.Status = StatusTimeout
				t.Error = fmt.Sprintf("task timed out after %s", timeout)
			})
		} else {
			s.finalize(ctx, id, started, logger, func(t *Task) {
				t.Status = StatusCancelled
				t.Error = "task cancelled during execution"
			})
		}
	}
}

// finalizeOutcome classifies a returned execution body: success, timeout,
// cancellation, or failure.
func (s *Scheduler) finalizeOutcome(ctx context.Context, id string, started time.Time, timeout time.Duration, taskCtx context.Context, outcome execOutcome, logger *slog.Logger) {
	switch {
	case outcome.err == nil:
		s.finalize(ctx, id, started, logger, func(t *Task) {
			t.Status = StatusCompleted
			t.Result = outcome.result
			t.Progress = 100
		})
	case taskCtx.Err() == context.DeadlineExceeded:
		s.finalize(ctx, id, started, logger, func(t *Task) {
			t.Status = StatusTimeout
			t.Error = fmt.Sprintf("task timed out after %s", timeout)
		})
	case taskCtx.Err() == context.Canceled:
		s.finalize(ctx, id, started, logger, func(t *Task) {
			t.Status = StatusCancelled
			t.Error = "task cancelled during execution"
		})
	default:
		err := outcome.err
		s.finalize(ctx, id, started, logger, func(t *Task) {
			t.Status = StatusFailed
			t.Error = err.Error()
		})
	}
}

// finalize moves the task to the completed map and updates aggregate
// metrics exactly once. If a concurrent Cancel finalized first, this is a
// no-op.
func (s *Scheduler) finalize(ctx context.Context, id string, started time.Time, logger *slog.Logger, mutate func(*Task)) {
	task, ok := s.registry.Finalize(id, mutate)
	if !ok {
		logger.Debug("task already finalized")
		return
	}

	processing := task.CompletedAt.Sub(started)
	s.metrics.recordFinalized(task.Status, processing)
	s.writeDurableMetadata(ctx, task)

	switch task.Status {
	case StatusCompleted:
		logger.Info("task completed", "duration", processing)
	case StatusTimeout:
		logger.Warn("task timed out", "duration", processing, "error", task.Error)
	case StatusCancelled:
		logger.Info("task cancelled during execution", "duration", processing)
	default:
		logger.Warn("task failed", "duration", processing, "error", task.Error)
	}
}
