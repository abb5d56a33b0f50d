package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/dispatch-api/internal/api/shared"
	"github.com/phrazzld/dispatch-api/internal/platform/logger"
	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	scheduler *scheduler.Scheduler
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(s *scheduler.Scheduler) *TaskHandler {
	return &TaskHandler{
		scheduler: s,
		validator: validator.New(),
	}
}

// SubmitTask handles POST /api/tasks requests.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	submitReq := scheduler.SubmitRequest{
		Type:        scheduler.TaskType(req.Type),
		Payload:     req.Payload,
		SubmitterID: req.SubmitterID,
		Endpoint:    req.Endpoint,
		Metadata:    req.Metadata,
		Timeout:     time.Duration(req.TimeoutSeconds) * time.Second,
		MaxRetries:  req.MaxRetries,
	}
	if req.Priority != nil {
		priority := scheduler.Priority(*req.Priority)
		submitReq.Priority = &priority
	}
	if req.RetryOf != "" {
		retryOf, err := uuid.Parse(req.RetryOf)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid retry_of task ID")
			return
		}
		submitReq.RetryOf = retryOf
	}

	taskID, err := h.scheduler.Submit(r.Context(), submitReq)
	if err != nil {
		log.Warn("task submission failed", "error", err, "task_type", req.Type)
		switch {
		case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrBackendUnavailable):
			// The record exists in Failed state; hand back the ID so the
			// caller can inspect it, with a retryable status code.
			shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, SubmitTaskResponse{
				TaskID: taskID.String(),
				Status: string(scheduler.StatusFailed),
				Error:  err.Error(),
			})
		case errors.Is(err, scheduler.ErrRetriesExhausted):
			shared.RespondWithError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, scheduler.ErrNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Retry target task not found")
		case errors.Is(err, scheduler.ErrSchedulerStopped):
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Scheduler is shutting down")
		default:
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to submit task")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID: taskID.String(),
		Status: string(scheduler.StatusQueued),
	})
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	task, err := h.scheduler.GetStatus(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		logger.FromContext(r.Context()).Error("task lookup failed", "task_id", taskID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to look up task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(task))
}

// CancelTask handles DELETE /api/tasks/{id} requests.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	if h.scheduler.Cancel(r.Context(), taskID) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
			"task_id":   taskID.String(),
			"cancelled": true,
		})
		return
	}

	// Distinguish an unknown task from one that already reached a terminal
	// state.
	if _, err := h.scheduler.GetStatus(r.Context(), taskID); errors.Is(err, scheduler.ErrNotFound) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}
	shared.RespondWithError(w, r, http.StatusConflict, "Task already finished")
}

// GetStats handles GET /api/tasks/stats requests.
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.scheduler.Stats())
}
