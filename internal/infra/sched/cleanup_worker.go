package sched

import (
	"context"
	"time"

	"clipcompare/internal/domain/ports/store"
	"clipcompare/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// CleanupWorker periodically drops jobs older than the retention window so
// the registry stays bounded. Jobs are short-lived and polled shortly after
// creation; anything past retention is garbage.
type CleanupWorker struct {
	interval  time.Duration
	retention time.Duration
	store     store.JobStore
	log       *zerolog.Logger
}

func NewCleanupWorker(interval, retention time.Duration, jobStore store.JobStore, logger *zerolog.Logger) *CleanupWorker {
	compLog := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{
		interval:  interval,
		retention: retention,
		store:     jobStore,
		log:       &compLog,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("retention", w.retention).Msg("Starting cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.store.Cleanup(ctx, w.retention)
			if err != nil {
				w.log.Error().Err(err).Msg("cleanup failed")
			}
			if n > 0 {
				metrics.AddJobsCleaned(n)
				w.log.Info().Int("count", n).Msg("expired jobs cleaned")
			}
		}
	}
}
