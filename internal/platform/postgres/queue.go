package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/dispatch-api/internal/scheduler"
	"github.com/phrazzld/dispatch-api/internal/store"
)

// QueueStore is a scheduler.Backend backed by PostgreSQL. Concurrent
// scheduler processes may pop from the same tables: Dequeue uses
// FOR UPDATE SKIP LOCKED so two workers never claim the same row.
type QueueStore struct {
	db store.DBTX
}

// NewQueueStore creates a QueueStore on the given connection or
// transaction.
func NewQueueStore(db store.DBTX) *QueueStore {
	return &QueueStore{db: db}
}

// Enqueue appends the payload to the queue for the given priority.
func (s *QueueStore) Enqueue(ctx context.Context, priority scheduler.Priority, payload []byte) error {
	query := `
		INSERT INTO scheduler_queue (priority, payload, enqueued_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, int(priority), payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to enqueue task at priority %d: %w", priority, err)
	}
	return nil
}

// Dequeue claims and deletes the oldest row for the given priority.
func (s *QueueStore) Dequeue(ctx context.Context, priority scheduler.Priority) ([]byte, error) {
	query := `
		DELETE FROM scheduler_queue
		WHERE id = (
			SELECT id FROM scheduler_queue
			WHERE priority = $1
			ORDER BY enqueued_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING payload
	`
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, int(priority)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scheduler.ErrBackendEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue at priority %d: %w", priority, err)
	}
	return payload, nil
}

// Get fetches unexpired task metadata.
func (s *QueueStore) Get(ctx context.Context, taskID string) ([]byte, error) {
	query := `
		SELECT payload FROM scheduler_task_metadata
		WHERE task_id = $1 AND expires_at > $2
	`
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, taskID, time.Now().UTC()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scheduler.ErrBackendMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for task %s: %w", taskID, err)
	}
	return payload, nil
}

// SetWithExpiry upserts the task metadata with an absolute expiry.
// Expired rows are invisible to Get immediately and physically removed by
// PruneExpired.
func (s *QueueStore) SetWithExpiry(ctx context.Context, taskID string, payload []byte, ttl time.Duration) error {
	query := `
		INSERT INTO scheduler_task_metadata (task_id, payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE
		SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at
	`
	expiresAt := time.Now().UTC().Add(ttl)
	if _, err := s.db.ExecContext(ctx, query, taskID, payload, expiresAt); err != nil {
		return fmt.Errorf("failed to set metadata for task %s: %w", taskID, err)
	}
	return nil
}

// Len reports the queued row count per priority level.
func (s *QueueStore) Len(ctx context.Context) (map[scheduler.Priority]int64, error) {
	query := `SELECT priority, COUNT(*) FROM scheduler_queue GROUP BY priority`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count queued tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depths := make(map[scheduler.Priority]int64, 5)
	for level := scheduler.PriorityCritical; level <= scheduler.PriorityBulk; level++ {
		depths[level] = 0
	}
	for rows.Next() {
		var priority int
		var count int64
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue depth row: %w", err)
		}
		depths[scheduler.Priority(priority)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue depth rows: %w", err)
	}
	return depths, nil
}

// PruneExpired deletes metadata rows whose expiry has passed. Intended to
// be called opportunistically (e.g. from a cron or the sweeper's owner);
// Get already filters expired rows, so this is space reclamation only.
func (s *QueueStore) PruneExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduler_task_metadata WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired metadata: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}
