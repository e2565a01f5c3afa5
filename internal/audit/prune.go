package audit

import (
	"context"
	"time"
)

// RunPruner deletes outcomes older than retention every interval until ctx
// is cancelled. It prunes once immediately on start.
func (s *Store) RunPruner(ctx context.Context, interval, retention time.Duration) {
	s.log.Info("pruner_starting", "interval", interval.String(), "retention", retention.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.prune(ctx, retention)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("pruner_shutting_down")
			return
		case <-ticker.C:
			s.prune(ctx, retention)
		}
	}
}

func (s *Store) prune(ctx context.Context, retention time.Duration) {
	start := time.Now()
	n, err := s.Prune(ctx, start.Add(-retention))
	if err != nil {
		s.log.Error("prune_failed", "err", err)
		return
	}
	s.log.Info("prune_complete", "deleted", n, "duration_ms", time.Since(start).Milliseconds())
}
