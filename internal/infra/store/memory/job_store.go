// File: internal/infra/store/memory/job_store.go
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ store.JobStore = (*JobStore)(nil)

// JobStore keeps every job in a mutex-guarded map. Jobs are short-lived and
// polled shortly after creation, so memory stays bounded by the retention
// cleanup. All transitions are check-then-act under the lock: correctness
// does not depend on one goroutine owning a job.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	log  *zerolog.Logger
}

func NewJobStore(logger *zerolog.Logger) *JobStore {
	compLog := logger.With().Str("component", "JobStore").Logger()
	return &JobStore{
		jobs: make(map[string]*model.Job),
		log:  &compLog,
	}
}

func (s *JobStore) Create(ctx context.Context, tasks []model.PairRef, maxAutoRetries int) (*model.Job, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("create job with no tasks: %w", domain.ErrInvalidArgument)
	}
	job := model.NewJob(uuid.NewString(), tasks, maxAutoRetries)

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.log.Debug().Str("job_id", job.ID).Int("segments", job.TotalSegments).Msg("job created")
	return job.Clone(), nil
}

func (s *JobStore) Find(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *JobStore) RecordTransition(ctx context.Context, id string, segment int, next model.SegmentStatus, tr store.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if err := job.ApplyTransition(segment, next, tr.Result, tr.Error, tr.Attempt, tr.Elapsed); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidArgument)
	}
	return nil
}

func (s *JobStore) MarkTerminal(ctx context.Context, id string, status model.JobStatus, agg *model.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Finish(status, agg)
	return nil
}

func (s *JobStore) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.StartTime.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info().Int("count", removed).Msg("expired jobs removed")
	}
	return removed, nil
}
