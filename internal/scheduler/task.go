package scheduler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible from s,
// other than eviction by the cleanup sweeper.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// TaskType identifies the kind of work a task carries. It is used only to
// look up the default timeout/priority/retry policy; the engine never
// interprets the payload itself.
type TaskType string

// Supported task types
const (
	TaskTypeSearch          TaskType = "search"
	TaskTypeFactCheck       TaskType = "fact_check"
	TaskTypeSynthesis       TaskType = "synthesis"
	TaskTypeVectorSearch    TaskType = "vector_search"
	TaskTypeAnalytics       TaskType = "analytics"
	TaskTypeBatchProcessing TaskType = "batch_processing"
	TaskTypeDataImport      TaskType = "data_import"
	TaskTypeModelTraining   TaskType = "model_training"
)

// Priority orders tasks for dequeue; lower values dequeue first.
type Priority int

// Priority levels, Critical first
const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
	PriorityBulk     Priority = 4
)

// numPriorities is the number of distinct priority levels.
const numPriorities = 5

// Valid reports whether p is one of the five defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityBulk
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// Task is the record for one unit of asynchronous work. Identity fields
// (ID, Type, Priority, SubmitterID, Endpoint, Payload, Timeout) are set at
// submission and never change. Lifecycle fields are mutated under the
// registry lock by a single owner at a time: the worker processing the
// task, or a caller cancelling it.
type Task struct {
	ID          uuid.UUID         `json:"id"`
	Type        TaskType          `json:"type"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	SubmitterID string            `json:"submitter_id,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Progress is 0-100 and meaningful only while processing; it is
	// monotonically non-decreasing until finalization sets it.
	Progress int `json:"progress"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retry_count"`
	MaxRetries int           `json:"max_retries"`
}

// Clone returns a copy of the task safe to hand to callers. The registry
// returns clones so readers never observe a record mid-mutation.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// TypePolicy holds the per-type defaults applied at submission when the
// caller does not override them.
type TypePolicy struct {
	Priority   Priority
	Timeout    time.Duration
	MaxRetries int
}

// defaultPolicies maps each task type to its submission defaults.
// Interactive query types run ahead of batch/data jobs and get short
// timeouts; bulk jobs tolerate long runs but sit at the back of the queue.
var defaultPolicies = map[TaskType]TypePolicy{
	TaskTypeSearch:          {Priority: PriorityHigh, Timeout: 30 * time.Second, MaxRetries: 2},
	TaskTypeFactCheck:       {Priority: PriorityHigh, Timeout: 60 * time.Second, MaxRetries: 2},
	TaskTypeSynthesis:       {Priority: PriorityNormal, Timeout: 120 * time.Second, MaxRetries: 1},
	TaskTypeVectorSearch:    {Priority: PriorityHigh, Timeout: 15 * time.Second, MaxRetries: 2},
	TaskTypeAnalytics:       {Priority: PriorityNormal, Timeout: 300 * time.Second, MaxRetries: 1},
	TaskTypeBatchProcessing: {Priority: PriorityBulk, Timeout: 30 * time.Minute, MaxRetries: 0},
	TaskTypeDataImport:      {Priority: PriorityLow, Timeout: 15 * time.Minute, MaxRetries: 1},
	TaskTypeModelTraining:   {Priority: PriorityBulk, Timeout: 2 * time.Hour, MaxRetries: 0},
}

// PolicyFor returns the default policy for the given task type. Unknown
// types fall back to a conservative normal-priority policy so submissions
// for new types degrade gracefully instead of failing.
func PolicyFor(taskType TaskType) TypePolicy {
	if p, ok := defaultPolicies[taskType]; ok {
		return p
	}
	return TypePolicy{Priority: PriorityNormal, Timeout: 60 * time.Second, MaxRetries: 0}
}
