package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

// SubmitTaskRequest is the request body for creating a task.
type SubmitTaskRequest struct {
	Type        string            `json:"type"                      validate:"required"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	SubmitterID string            `json:"submitter_id,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Priority overrides the task type's default when set; 0=critical
	// through 4=bulk.
	Priority *int `json:"priority,omitempty"        validate:"omitempty,gte=0,lte=4"`

	// TimeoutSeconds overrides the task type's default execution timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"gte=0"`

	MaxRetries *int `json:"max_retries,omitempty"     validate:"omitempty,gte=0"`

	// RetryOf resubmits a prior failed task, incrementing its retry count.
	RetryOf string `json:"retry_of,omitempty"        validate:"omitempty,uuid"`
}

// SubmitTaskResponse is returned on submission. TaskID is present even
// when enqueueing failed, so the caller can poll the failure details.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TaskResponse is the API representation of a task record.
type TaskResponse struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Priority    int               `json:"priority"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	SubmitterID string            `json:"submitter_id,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	TimeoutSecs float64           `json:"timeout_seconds"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
}

// newTaskResponse maps a task record to its API representation.
func newTaskResponse(task *scheduler.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID.String(),
		Type:        string(task.Type),
		Priority:    int(task.Priority),
		Status:      string(task.Status),
		Progress:    task.Progress,
		SubmitterID: task.SubmitterID,
		Endpoint:    task.Endpoint,
		Metadata:    task.Metadata,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Result:      task.Result,
		Error:       task.Error,
		TimeoutSecs: task.Timeout.Seconds(),
		RetryCount:  task.RetryCount,
		MaxRetries:  task.MaxRetries,
	}
}
