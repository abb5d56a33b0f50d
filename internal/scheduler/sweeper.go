package scheduler

import (
	"context"
	"time"
)

// sweep is the cleanup loop. On each tick it evicts terminal tasks older
// than the retention window and refreshes the queue-depth gauge. A failed
// sweep logs and retries on the next tick; it never blocks submission or
// execution.
func (s *Scheduler) sweep(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.RetentionPeriod)
	evicted := s.registry.EvictBefore(cutoff)
	if evicted > 0 {
		s.logger.Info("evicted expired tasks",
			"count", evicted,
			"retention", s.cfg.RetentionPeriod)
	}

	if s.durable != nil {
		depth, err := s.durable.Depth(ctx)
		if err != nil {
			s.logger.Warn("failed to refresh queue depth gauge", "error", err)
			return
		}
		s.queueDepth.Store(depth)
	} else {
		s.queueDepth.Store(int64(s.queue.Len()))
	}
}
