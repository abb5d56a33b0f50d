// Package redis implements the scheduler's durable queue backend on top
// of Redis lists and keys: one list per priority level plus a key per task
// for status metadata with expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

const (
	queueKeyPrefix = "dispatch:queue:"
	taskKeyPrefix  = "dispatch:task:"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Backend is a scheduler.Backend backed by a Redis server.
type Backend struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Backend{client: client}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client) *Backend {
	return &Backend{client: client}
}

// Enqueue appends the payload to the tail of the priority's list.
func (b *Backend) Enqueue(ctx context.Context, priority scheduler.Priority, payload []byte) error {
	key := queueKey(priority)
	if err := b.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Dequeue pops the oldest entry from the priority's list.
func (b *Backend) Dequeue(ctx context.Context, priority scheduler.Priority) ([]byte, error) {
	key := queueKey(priority)
	payload, err := b.client.LPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, scheduler.ErrBackendEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("lpop %s: %w", key, err)
	}
	return payload, nil
}

// Get fetches the task metadata entry.
func (b *Backend) Get(ctx context.Context, taskID string) ([]byte, error) {
	payload, err := b.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, scheduler.ErrBackendMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return payload, nil
}

// SetWithExpiry writes the task metadata entry with a TTL, after which
// Redis evicts it and lookups report not found.
func (b *Backend) SetWithExpiry(ctx context.Context, taskID string, payload []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, taskKeyPrefix+taskID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set task %s: %w", taskID, err)
	}
	return nil
}

// Len reports the queued entry count per priority level.
func (b *Backend) Len(ctx context.Context) (map[scheduler.Priority]int64, error) {
	depths := make(map[scheduler.Priority]int64, 5)
	for level := scheduler.PriorityCritical; level <= scheduler.PriorityBulk; level++ {
		n, err := b.client.LLen(ctx, queueKey(level)).Result()
		if err != nil {
			return nil, fmt.Errorf("llen %s: %w", queueKey(level), err)
		}
		depths[level] = n
	}
	return depths, nil
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func queueKey(priority scheduler.Priority) string {
	return fmt.Sprintf("%s%d", queueKeyPrefix, priority)
}
