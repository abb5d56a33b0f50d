package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s", s)
	}

	live := []Status{StatusPending, StatusQueued, StatusProcessing}
	for _, s := range live {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}

func TestPriority_Valid(t *testing.T) {
	for p := PriorityCritical; p <= PriorityBulk; p++ {
		assert.True(t, p.Valid(), "priority %d", p)
	}
	assert.False(t, Priority(-1).Valid())
	assert.False(t, Priority(numPriorities).Valid())
}

func TestPolicyFor(t *testing.T) {
	search := PolicyFor(TaskTypeSearch)
	assert.Equal(t, PriorityHigh, search.Priority)
	assert.Equal(t, 30*time.Second, search.Timeout)

	batch := PolicyFor(TaskTypeBatchProcessing)
	assert.Equal(t, PriorityBulk, batch.Priority)
	assert.Equal(t, 0, batch.MaxRetries)

	// Unknown types fall back rather than fail.
	unknown := PolicyFor(TaskType("telemetry_rollup"))
	assert.Equal(t, PriorityNormal, unknown.Priority)
	assert.Positive(t, unknown.Timeout)
}

func TestTask_CloneIsolation(t *testing.T) {
	started := time.Now().UTC()
	task := newQueuedTask(PriorityNormal)
	task.StartedAt = &started
	task.Metadata = map[string]string{"source": "api"}

	clone := task.Clone()
	clone.Status = StatusFailed
	clone.StartedAt = nil
	clone.Metadata["source"] = "mutated"

	assert.Equal(t, StatusQueued, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.Equal(t, "api", task.Metadata["source"])
}
