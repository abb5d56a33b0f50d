package scheduler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedTask(priority Priority) *Task {
	return &Task{
		ID:       uuid.New(),
		Type:     TaskTypeSearch,
		Priority: priority,
		Status:   StatusQueued,
	}
}

func TestMemoryQueue_PriorityOrder(t *testing.T) {
	q := newMemoryQueue(10)

	bulk := newQueuedTask(PriorityBulk)
	critical := newQueuedTask(PriorityCritical)
	normal := newQueuedTask(PriorityNormal)
	high := newQueuedTask(PriorityHigh)

	// Submission order deliberately scrambled; dequeue must follow
	// priority, not arrival.
	require.NoError(t, q.Enqueue(bulk))
	require.NoError(t, q.Enqueue(normal))
	require.NoError(t, q.Enqueue(critical))
	require.NoError(t, q.Enqueue(high))

	want := []*Task{critical, high, normal, bulk}
	for _, expected := range want {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, expected.ID, got.ID)
	}

	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestMemoryQueue_FIFOWithinLevel(t *testing.T) {
	q := newMemoryQueue(10)

	first := newQueuedTask(PriorityNormal)
	second := newQueuedTask(PriorityNormal)
	third := newQueuedTask(PriorityNormal)

	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))
	require.NoError(t, q.Enqueue(third))

	for _, expected := range []*Task{first, second, third} {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, expected.ID, got.ID)
	}
}

func TestMemoryQueue_CapacityBound(t *testing.T) {
	q := newMemoryQueue(2)

	require.NoError(t, q.Enqueue(newQueuedTask(PriorityNormal)))
	require.NoError(t, q.Enqueue(newQueuedTask(PriorityCritical)))

	err := q.Enqueue(newQueuedTask(PriorityHigh))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	// Draining frees capacity again.
	_, ok := q.Dequeue()
	require.True(t, ok)
	assert.NoError(t, q.Enqueue(newQueuedTask(PriorityHigh)))
}

func TestMemoryQueue_EmptyDequeue(t *testing.T) {
	q := newMemoryQueue(5)

	task, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Nil(t, task)
	assert.Equal(t, 0, q.Len())
}
