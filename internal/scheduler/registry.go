package scheduler

import (
	"sync"
	"time"
)

// registry tracks task records across their lifecycle: the active map
// holds pending/queued/processing tasks, the completed map holds terminal
// ones until the sweeper evicts them. Both maps live under one lock so a
// concurrent reader can never observe an ID absent from both maps while a
// finalization is mid-move.
type registry struct {
	mu        sync.RWMutex
	active    map[string]*Task
	completed map[string]*Task
}

func newRegistry() *registry {
	return &registry{
		active:    make(map[string]*Task),
		completed: make(map[string]*Task),
	}
}

// Add inserts a freshly submitted task into the active map.
func (r *registry) Add(task *Task) {
	r.mu.Lock()
	r.active[task.ID.String()] = task
	r.mu.Unlock()
}

// Get returns a clone of the task, checking the active map first and the
// completed map second.
func (r *registry) Get(taskID string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if task, ok := r.active[taskID]; ok {
		return task.Clone(), true
	}
	if task, ok := r.completed[taskID]; ok {
		return task.Clone(), true
	}
	return nil, false
}

// Update applies mutate to the task under the registry lock, if the task
// is still active and not yet terminal. Used for the Queued->Processing
// transition and progress updates.
func (r *registry) Update(taskID string, mutate func(*Task)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.active[taskID]
	if !ok || task.Status.Terminal() {
		return false
	}
	mutate(task)
	return true
}

// Finalize moves the task from active to completed, applying mutate to set
// the terminal status, result/error, and CompletedAt. It returns false if
// the task is unknown or already terminal, which resolves the race between
// a worker finishing a task and a caller cancelling it: whichever
// finalizes first wins, the other becomes a no-op.
func (r *registry) Finalize(taskID string, mutate func(*Task)) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.active[taskID]
	if !ok || task.Status.Terminal() {
		return nil, false
	}

	mutate(task)
	now := time.Now().UTC()
	task.CompletedAt = &now

	delete(r.active, taskID)
	r.completed[taskID] = task
	return task, true
}

// ActiveCount returns the number of non-terminal tasks.
func (r *registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CompletedCount returns the number of retained terminal tasks.
func (r *registry) CompletedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.completed)
}

// EvictBefore deletes terminal tasks finalized before the cutoff and
// returns how many were removed.
func (r *registry) EvictBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, task := range r.completed {
		if task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(r.completed, id)
			evicted++
		}
	}
	return evicted
}
