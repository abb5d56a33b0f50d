package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client), mr
}

func TestBackend_EnqueueDequeueFIFO(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, scheduler.PriorityHigh, []byte("first")))
	require.NoError(t, b.Enqueue(ctx, scheduler.PriorityHigh, []byte("second")))

	got, err := b.Dequeue(ctx, scheduler.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	got, err = b.Dequeue(ctx, scheduler.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestBackend_DequeueEmpty(t *testing.T) {
	b, _ := newTestBackend(t)

	_, err := b.Dequeue(context.Background(), scheduler.PriorityCritical)
	assert.ErrorIs(t, err, scheduler.ErrBackendEmpty)
}

func TestBackend_LevelsAreIndependent(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, scheduler.PriorityBulk, []byte("bulk")))

	_, err := b.Dequeue(ctx, scheduler.PriorityCritical)
	assert.ErrorIs(t, err, scheduler.ErrBackendEmpty)

	got, err := b.Dequeue(ctx, scheduler.PriorityBulk)
	require.NoError(t, err)
	assert.Equal(t, []byte("bulk"), got)
}

func TestBackend_MetadataRoundTrip(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SetWithExpiry(ctx, "task-1", []byte(`{"status":"completed"}`), time.Hour))

	got, err := b.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, string(got))

	_, err = b.Get(ctx, "task-2")
	assert.ErrorIs(t, err, scheduler.ErrBackendMiss)
}

func TestBackend_MetadataExpires(t *testing.T) {
	b, mr := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SetWithExpiry(ctx, "task-1", []byte("payload"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := b.Get(ctx, "task-1")
	assert.ErrorIs(t, err, scheduler.ErrBackendMiss)
}

func TestBackend_Len(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, scheduler.PriorityCritical, []byte("a")))
	require.NoError(t, b.Enqueue(ctx, scheduler.PriorityCritical, []byte("b")))
	require.NoError(t, b.Enqueue(ctx, scheduler.PriorityNormal, []byte("c")))

	depths, err := b.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depths[scheduler.PriorityCritical])
	assert.Equal(t, int64(1), depths[scheduler.PriorityNormal])
	assert.Equal(t, int64(0), depths[scheduler.PriorityBulk])
}
