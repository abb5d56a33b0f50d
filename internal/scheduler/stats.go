package scheduler

import (
	"sync"
	"time"
)

// QueueStats is the point-in-time metrics snapshot returned by Stats.
type QueueStats struct {
	TotalTasks     int64 `json:"total_tasks"`
	ActiveTasks    int   `json:"active_tasks"`
	QueuedTasks    int64 `json:"queued_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	FailedTasks    int64 `json:"failed_tasks"`
	CancelledTasks int64 `json:"cancelled_tasks"`
	TimeoutTasks   int64 `json:"timeout_tasks"`
	RetainedTasks  int   `json:"retained_tasks"`
	WorkerCount    int   `json:"worker_count"`

	// AvgProcessingMs is the running average wall-clock time of finalized
	// tasks that actually started processing, in milliseconds.
	AvgProcessingMs float64 `json:"avg_processing_ms"`
}

// metrics accumulates lifetime counters and the running processing-time
// average. Finalization updates it exactly once per task.
type metrics struct {
	mu sync.Mutex

	total     int64
	completed int64
	failed    int64
	cancelled int64
	timedOut  int64

	processedCount int64
	avgProcessing  time.Duration
}

func (m *metrics) recordSubmitted() {
	m.mu.Lock()
	m.total++
	m.mu.Unlock()
}

// recordFinalized counts the terminal status and folds the processing
// duration into the running average. Tasks that never started (cancelled
// while queued, failed at enqueue) pass a zero duration and are excluded
// from the average.
func (m *metrics) recordFinalized(status Status, processing time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case StatusCompleted:
		m.completed++
	case StatusFailed:
		m.failed++
	case StatusCancelled:
		m.cancelled++
	case StatusTimeout:
		m.timedOut++
	}

	if processing > 0 {
		m.processedCount++
		// Incremental running average: avg += (x - avg) / n.
		m.avgProcessing += (processing - m.avgProcessing) / time.Duration(m.processedCount)
	}
}

func (m *metrics) snapshot() QueueStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return QueueStats{
		TotalTasks:      m.total,
		CompletedTasks:  m.completed,
		FailedTasks:     m.failed,
		CancelledTasks:  m.cancelled,
		TimeoutTasks:    m.timedOut,
		AvgProcessingMs: float64(m.avgProcessing) / float64(time.Millisecond),
	}
}
