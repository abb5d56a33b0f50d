package scheduler

import (
	"fmt"
	"sync"
)

// memoryQueue is the in-process priority queue store: one FIFO list per
// priority level, bounded by a total capacity across all levels. Dequeue
// always drains the lowest-numbered non-empty level first.
type memoryQueue struct {
	mu       sync.Mutex
	levels   [numPriorities][]*Task
	size     int
	capacity int
}

// newMemoryQueue creates a bounded in-process queue. Capacity applies to
// the sum of all five levels.
func newMemoryQueue(capacity int) *memoryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryQueue{capacity: capacity}
}

// Enqueue appends the task to its priority level's FIFO list. Returns
// ErrQueueFull when the queue is at capacity.
func (q *memoryQueue) Enqueue(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size >= q.capacity {
		return fmt.Errorf("%w: capacity %d reached", ErrQueueFull, q.capacity)
	}

	q.levels[task.Priority] = append(q.levels[task.Priority], task)
	q.size++
	return nil
}

// Dequeue pops the oldest task from the first non-empty level, scanning
// Critical through Bulk. Returns ok=false when every level is empty; it
// never blocks.
func (q *memoryQueue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for level := range q.levels {
		if len(q.levels[level]) == 0 {
			continue
		}
		task := q.levels[level][0]
		// Nil out the popped slot so the backing array does not pin the task.
		q.levels[level][0] = nil
		q.levels[level] = q.levels[level][1:]
		q.size--
		return task, true
	}
	return nil, false
}

// Len returns the total number of queued tasks across all levels.
func (q *memoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
