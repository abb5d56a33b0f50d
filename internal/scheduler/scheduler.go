package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the scheduler's tunables. Zero values fall back to the
// defaults from DefaultConfig.
type Config struct {
	// WorkerCount is the number of concurrent worker loops.
	WorkerCount int

	// MaxQueueSize bounds the in-process queue across all priority levels.
	MaxQueueSize int

	// PollInterval is how long an idle worker waits before re-checking the
	// queue. This is the only polling point; workers never busy-spin.
	PollInterval time.Duration

	// CleanupInterval is how often the sweeper evicts expired results and
	// refreshes the queue-depth gauge.
	CleanupInterval time.Duration

	// RetentionPeriod is how long terminal tasks remain queryable.
	RetentionPeriod time.Duration

	// BackendOpTimeout bounds individual durable-backend calls; it is
	// independent of any task's execution timeout.
	BackendOpTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:      4,
		MaxQueueSize:     1000,
		PollInterval:     time.Second,
		CleanupInterval:  60 * time.Second,
		RetentionPeriod:  24 * time.Hour,
		BackendOpTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = def.RetentionPeriod
	}
	if c.BackendOpTimeout <= 0 {
		c.BackendOpTimeout = def.BackendOpTimeout
	}
	return c
}

// SubmitRequest carries one task submission. Priority, Timeout and
// MaxRetries override the per-type policy defaults when set.
type SubmitRequest struct {
	Type        TaskType
	Payload     json.RawMessage
	SubmitterID string
	Endpoint    string
	Metadata    map[string]string

	Priority   *Priority
	Timeout    time.Duration
	MaxRetries *int

	// RetryOf names a prior failed task this submission retries. The new
	// task copies the prior retry lineage with RetryCount+1; the engine
	// itself never re-enqueues on failure.
	RetryOf uuid.UUID
}

// Scheduler is the engine facade. Construct with New, register executors,
// then Start. It owns its queue, registry, worker handles and sweeper;
// multiple independent instances can coexist in one process.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	queue   *memoryQueue
	durable *durableQueue // nil when only the in-process queue is configured

	registry  *registry
	metrics   metrics
	executors map[TaskType]Executor

	// queueDepth is the gauge refreshed by the sweeper (live for the
	// in-process queue).
	queueDepth atomic.Int64

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc // per-task cancel funcs while processing
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	stopped   bool
}

// Option customizes a Scheduler at construction.
type Option func(*Scheduler)

// WithBackend attaches a durable queue backend. When set, submissions are
// enqueued durably and survive process restarts; the in-process queue is
// bypassed.
func WithBackend(b Backend) Option {
	return func(s *Scheduler) {
		s.durable = newDurableQueue(b, s.cfg.BackendOpTimeout, s.cfg.RetentionPeriod)
	}
}

// New creates a stopped Scheduler. Call RegisterExecutor for each task
// type, then Start.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		registry:  newRegistry(),
		executors: make(map[TaskType]Executor),
		cancels:   make(map[string]context.CancelFunc),
	}
	s.queue = newMemoryQueue(s.cfg.MaxQueueSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterExecutor binds the execution body for a task type. Must be
// called before Start; later registrations race with dispatch.
func (s *Scheduler) RegisterExecutor(taskType TaskType, executor Executor) {
	s.executors[taskType] = executor
}

// Start launches the worker pool and the cleanup sweeper. The provided
// context is the root for all task execution; cancelling it begins
// shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}
	if s.stopped {
		return ErrSchedulerStopped
	}
	s.started = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(s.runCtx, i)
	}
	s.wg.Add(1)
	go s.sweep(s.runCtx)

	s.logger.Info("scheduler started",
		"workers", s.cfg.WorkerCount,
		"max_queue_size", s.cfg.MaxQueueSize,
		"durable_backend", s.durable != nil)
	return nil
}

// Stop rejects further submissions, signals all loops to stop, and waits
// for in-flight tasks to finish or the context to expire. Workers abort
// their current task at its next cancellation-check point.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.runCancel
	s.mu.Unlock()

	start := time.Now()
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped", "took", time.Since(start))
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; workers abandoned", "took", time.Since(start))
		return ctx.Err()
	}
}

// Submit creates a task record, resolves policy defaults, and enqueues it.
// The task ID is returned even when enqueueing fails, so the caller can
// inspect the failure via GetStatus; the error still reports why.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return uuid.Nil, ErrSchedulerStopped
	}

	policy := PolicyFor(req.Type)

	task := &Task{
		ID:          uuid.New(),
		Type:        req.Type,
		Priority:    policy.Priority,
		Status:      StatusPending,
		SubmitterID: req.SubmitterID,
		Endpoint:    req.Endpoint,
		Payload:     req.Payload,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now().UTC(),
		Timeout:     policy.Timeout,
		MaxRetries:  policy.MaxRetries,
	}
	if req.Priority != nil && req.Priority.Valid() {
		task.Priority = *req.Priority
	}
	if req.Timeout > 0 {
		task.Timeout = req.Timeout
	}
	if req.MaxRetries != nil {
		task.MaxRetries = *req.MaxRetries
	}

	if req.RetryOf != uuid.Nil {
		prior, err := s.GetStatus(ctx, req.RetryOf)
		if err != nil {
			return uuid.Nil, fmt.Errorf("retry of unknown task %s: %w", req.RetryOf, err)
		}
		task.RetryCount = prior.RetryCount + 1
		task.MaxRetries = prior.MaxRetries
		if task.RetryCount > task.MaxRetries {
			return uuid.Nil, fmt.Errorf("%w: task %s already retried %d times", ErrRetriesExhausted, req.RetryOf, prior.RetryCount)
		}
	}

	s.registry.Add(task)
	s.metrics.recordSubmitted()

	// Mark Queued before the enqueue call: once the task is in the queue a
	// worker may dequeue it immediately, and a later status write from
	// this goroutine would race with the worker's Processing transition.
	s.registry.Update(task.ID.String(), func(t *Task) {
		t.Status = StatusQueued
	})

	var err error
	if s.durable != nil {
		err = s.durable.Enqueue(ctx, task)
	} else {
		err = s.queue.Enqueue(task)
	}

	if err != nil {
		s.registry.Finalize(task.ID.String(), func(t *Task) {
			t.Status = StatusFailed
			t.Error = err.Error()
		})
		s.metrics.recordFinalized(StatusFailed, 0)
		s.logger.Warn("task enqueue failed",
			"task_id", task.ID,
			"task_type", task.Type,
			"priority", task.Priority.String(),
			"error", err)
		return task.ID, err
	}

	if s.durable == nil {
		s.queueDepth.Store(int64(s.queue.Len()))
	}

	s.logger.Debug("task enqueued",
		"task_id", task.ID,
		"task_type", task.Type,
		"priority", task.Priority.String(),
		"submitter_id", task.SubmitterID)
	return task.ID, nil
}

// GetStatus returns a snapshot of the task record. It checks the active
// map, then the completed map, then the durable backend's metadata entry.
// Returns ErrNotFound for unknown or purged IDs.
func (s *Scheduler) GetStatus(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	if task, ok := s.registry.Get(taskID.String()); ok {
		return task, nil
	}
	if s.durable != nil {
		task, err := s.durable.Hydrate(ctx, taskID.String())
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, ErrBackendMiss) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Cancel marks the task Cancelled if it is still pending, queued, or
// processing, and signals the owning worker if one is mid-execution. It
// returns false when the task is unknown or already terminal. A worker
// that has already finalized the task wins; this Cancel is then a no-op.
func (s *Scheduler) Cancel(ctx context.Context, taskID uuid.UUID) bool {
	id := taskID.String()

	task, ok := s.registry.Finalize(id, func(t *Task) {
		t.Status = StatusCancelled
		t.Error = "cancelled by submitter"
	})
	if !ok {
		return false
	}

	// Signal the worker, if the task is mid-execution. The worker's own
	// finalization will lose the race and become a no-op.
	s.mu.Lock()
	if cancel, exists := s.cancels[id]; exists {
		cancel()
	}
	s.mu.Unlock()

	var processing time.Duration
	if task.StartedAt != nil {
		processing = task.CompletedAt.Sub(*task.StartedAt)
	}
	s.metrics.recordFinalized(StatusCancelled, processing)
	s.writeDurableMetadata(ctx, task)

	s.logger.Info("task cancelled",
		"task_id", taskID,
		"task_type", task.Type,
		"was_processing", task.StartedAt != nil)
	return true
}

// Stats returns the current metrics snapshot.
func (s *Scheduler) Stats() QueueStats {
	stats := s.metrics.snapshot()
	stats.ActiveTasks = s.registry.ActiveCount()
	stats.RetainedTasks = s.registry.CompletedCount()
	stats.WorkerCount = s.cfg.WorkerCount
	if s.durable == nil {
		stats.QueuedTasks = int64(s.queue.Len())
	} else {
		stats.QueuedTasks = s.queueDepth.Load()
	}
	return stats
}

// writeDurableMetadata best-effort persists the task's terminal state for
// cross-process lookup. Failures are logged, never propagated: the local
// registry remains authoritative for this process.
func (s *Scheduler) writeDurableMetadata(ctx context.Context, task *Task) {
	if s.durable == nil {
		return
	}
	if err := s.durable.WriteMetadata(ctx, task); err != nil {
		s.logger.Warn("failed to persist task metadata",
			"task_id", task.ID,
			"error", err)
	}
}
