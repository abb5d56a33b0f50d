// Package executor provides execution bodies for the scheduler. The
// platform's real clients (search, LLM, vector, analytics) plug in behind
// the same scheduler.Executor interface; the simulated executor here
// stands in for them in the standalone binary and in tests.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

// Simulated is an Executor that models a downstream client call: it works
// through a fixed latency in slices, reporting progress and honoring
// context cancellation between slices.
type Simulated struct {
	// Latency is the total simulated execution time.
	Latency time.Duration

	// Steps is how many cancellation-check points the run is divided into.
	// Zero defaults to 10.
	Steps int
}

// Execute implements scheduler.Executor.
func (s Simulated) Execute(ctx context.Context, task *scheduler.Task, progress scheduler.ProgressFunc) (json.RawMessage, error) {
	steps := s.Steps
	if steps <= 0 {
		steps = 10
	}
	slice := s.Latency / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if slice > 0 {
			timer := time.NewTimer(slice)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		progress(i * 100 / steps)
	}

	result, err := json.Marshal(map[string]any{
		"task_type":   task.Type,
		"payload_len": len(task.Payload),
		"simulated":   true,
		"duration_ms": s.Latency.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return result, nil
}

// simulatedLatencies approximates each task type's real execution profile.
var simulatedLatencies = map[scheduler.TaskType]time.Duration{
	scheduler.TaskTypeSearch:          300 * time.Millisecond,
	scheduler.TaskTypeFactCheck:       800 * time.Millisecond,
	scheduler.TaskTypeSynthesis:       1500 * time.Millisecond,
	scheduler.TaskTypeVectorSearch:    150 * time.Millisecond,
	scheduler.TaskTypeAnalytics:       2 * time.Second,
	scheduler.TaskTypeBatchProcessing: 5 * time.Second,
	scheduler.TaskTypeDataImport:      3 * time.Second,
	scheduler.TaskTypeModelTraining:   10 * time.Second,
}

// RegisterSimulated binds a simulated executor for every supported task
// type. Callers embedding the scheduler in the full platform register
// their real executors instead.
func RegisterSimulated(s *scheduler.Scheduler) {
	for taskType, latency := range simulatedLatencies {
		s.RegisterExecutor(taskType, Simulated{Latency: latency})
	}
}
