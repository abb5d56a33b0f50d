package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Backend is the durable queue store contract: per-priority persistent
// lists plus a key/value metadata store with expiry. It is satisfiable by
// Redis or any list+KV store, and is used when multiple scheduler
// processes share one queue or submissions must survive a restart.
//
// Delivery is at-least-once on the queue side only: Dequeue is a
// destructive pop, and a process that crashes between popping a task and
// finalizing it loses that task. No lease/visibility-timeout mechanism is
// layered on top; callers needing stronger guarantees must resubmit.
type Backend interface {
	// Enqueue appends a serialized task to the list for the given priority.
	Enqueue(ctx context.Context, priority Priority, payload []byte) error

	// Dequeue pops the oldest entry from the given priority's list.
	// Returns ErrBackendEmpty when the list holds no entries.
	Dequeue(ctx context.Context, priority Priority) ([]byte, error)

	// Get fetches the serialized task metadata for the given ID, or
	// ErrBackendMiss if absent or expired.
	Get(ctx context.Context, taskID string) ([]byte, error)

	// SetWithExpiry stores serialized task metadata under the given ID with
	// the given time-to-live.
	SetWithExpiry(ctx context.Context, taskID string, payload []byte, ttl time.Duration) error

	// Len reports the number of queued entries per priority level, for the
	// queue-depth gauge.
	Len(ctx context.Context) (map[Priority]int64, error)
}

// durableQueue adapts a Backend to the enqueue/dequeue shape the workers
// use, handling task (de)serialization and metadata writes. Backend calls
// are bounded by a short operation timeout independent of any task's own
// execution timeout.
type durableQueue struct {
	backend   Backend
	opTimeout time.Duration
	// metadataTTL bounds how long a task's durable metadata entry survives;
	// it mirrors the registry retention window.
	metadataTTL time.Duration
}

func newDurableQueue(backend Backend, opTimeout, metadataTTL time.Duration) *durableQueue {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	if metadataTTL <= 0 {
		metadataTTL = 24 * time.Hour
	}
	return &durableQueue{backend: backend, opTimeout: opTimeout, metadataTTL: metadataTTL}
}

// Enqueue serializes the task, appends it to its priority list, and writes
// the metadata entry used for cross-process status lookup.
func (d *durableQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task %s: %w", task.ID, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.backend.Enqueue(opCtx, task.Priority, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := d.backend.SetWithExpiry(opCtx, task.ID.String(), payload, d.metadataTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Dequeue polls priority levels 0 through 4 in order and pops the oldest
// entry from the first non-empty level. Returns ok=false when all levels
// are empty or the backend is unreachable.
func (d *durableQueue) Dequeue(ctx context.Context) (*Task, bool) {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	for level := PriorityCritical; level <= PriorityBulk; level++ {
		payload, err := d.backend.Dequeue(opCtx, level)
		if err != nil {
			if errors.Is(err, ErrBackendEmpty) {
				continue
			}
			// Backend unreachable; give up this poll rather than hammering
			// the remaining levels.
			return nil, false
		}
		var task Task
		if err := json.Unmarshal(payload, &task); err != nil {
			// A corrupt entry is dropped rather than wedging the level.
			continue
		}
		return &task, true
	}
	return nil, false
}

// WriteMetadata persists the task's current state for cross-process
// status lookup, with the retention TTL.
func (d *durableQueue) WriteMetadata(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task %s: %w", task.ID, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	if err := d.backend.SetWithExpiry(opCtx, task.ID.String(), payload, d.metadataTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Hydrate fetches the durable metadata entry for the given task ID.
func (d *durableQueue) Hydrate(ctx context.Context, taskID string) (*Task, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	payload, err := d.backend.Get(opCtx, taskID)
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to deserialize task %s: %w", taskID, err)
	}
	return &task, nil
}

// Depth sums the per-priority queue lengths reported by the backend.
func (d *durableQueue) Depth(ctx context.Context) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	byLevel, err := d.backend.Len(opCtx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var total int64
	for _, n := range byLevel {
		total += n
	}
	return total, nil
}
