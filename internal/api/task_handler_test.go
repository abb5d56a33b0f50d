package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

func newTestScheduler(t *testing.T, start bool) *scheduler.Scheduler {
	t.Helper()
	cfg := scheduler.Config{
		WorkerCount:     1,
		MaxQueueSize:    100,
		PollInterval:    5 * time.Millisecond,
		CleanupInterval: time.Hour,
		RetentionPeriod: time.Hour,
	}
	s := scheduler.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.RegisterExecutor(scheduler.TaskTypeSearch, scheduler.ExecutorFunc(
		func(ctx context.Context, _ *scheduler.Task, progress scheduler.ProgressFunc) (json.RawMessage, error) {
			progress(100)
			return json.RawMessage(`{"ok":true}`), nil
		}))
	if start {
		require.NoError(t, s.Start(context.Background()))
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.Stop(ctx)
		})
	}
	return s
}

func newTestRouter(s *scheduler.Scheduler) http.Handler {
	r := chi.NewRouter()
	h := NewTaskHandler(s)
	r.Post("/api/tasks", h.SubmitTask)
	r.Get("/api/tasks/stats", h.GetStats)
	r.Get("/api/tasks/{id}", h.GetTask)
	r.Delete("/api/tasks/{id}", h.CancelTask)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitTask_Accepted(t *testing.T) {
	s := newTestScheduler(t, false)
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"type":         "search",
		"payload":      map[string]string{"query": "golang"},
		"submitter_id": "user-1",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	_, err := uuid.Parse(resp.TaskID)
	assert.NoError(t, err)
}

func TestSubmitTask_InvalidBody(t *testing.T) {
	s := newTestScheduler(t, false)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTask_ValidationErrors(t *testing.T) {
	s := newTestScheduler(t, false)
	router := newTestRouter(s)

	// Missing required type.
	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"payload": map[string]string{"query": "golang"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Priority outside the 0-4 range.
	rec = doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"type":     "search",
		"priority": 9,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed retry_of.
	rec = doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"type":     "search",
		"retry_of": "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTask_QueueFull(t *testing.T) {
	cfg := scheduler.Config{
		WorkerCount:     1,
		MaxQueueSize:    1,
		PollInterval:    5 * time.Millisecond,
		CleanupInterval: time.Hour,
		RetentionPeriod: time.Hour,
	}
	s := scheduler.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{"type": "search"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{"type": "search"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The failed submission still carries an inspectable task ID.
	var resp SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.NotEmpty(t, resp.Error)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+resp.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var task TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "failed", task.Status)
}

func TestGetTask_Lifecycle(t *testing.T) {
	s := newTestScheduler(t, true)
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"type":         "search",
		"payload":      map[string]string{"query": "golang"},
		"submitter_id": "user-1",
		"endpoint":     "/api/search",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	var task TaskResponse
	require.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, "/api/tasks/"+submitted.TaskID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
			return false
		}
		return task.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, submitted.TaskID, task.ID)
	assert.Equal(t, "search", task.Type)
	assert.Equal(t, "user-1", task.SubmitterID)
	assert.Equal(t, 100, task.Progress)
	assert.JSONEq(t, `{"ok":true}`, string(task.Result))
	require.NotNil(t, task.CompletedAt)
}

func TestGetTask_Errors(t *testing.T) {
	s := newTestScheduler(t, false)
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodGet, "/api/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTask_Queued(t *testing.T) {
	s := newTestScheduler(t, false) // no workers, task stays queued
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{"type": "search"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	rec = doJSON(t, router, http.MethodDelete, "/api/tasks/"+submitted.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+submitted.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var task TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "cancelled", task.Status)

	// Cancelling again conflicts: the task is already terminal.
	rec = doJSON(t, router, http.MethodDelete, "/api/tasks/"+submitted.TaskID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelTask_Unknown(t *testing.T) {
	s := newTestScheduler(t, false)
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodDelete, "/api/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStats(t *testing.T) {
	s := newTestScheduler(t, false)
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{"type": "search"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats scheduler.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalTasks)
	assert.Equal(t, int64(1), stats.QueuedTasks)
	assert.Equal(t, 1, stats.WorkerCount)
}
