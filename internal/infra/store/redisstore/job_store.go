package redisstore

import (
	"context"
	"encoding/json"
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

// JobStore keeps jobs as JSON documents in Redis so the registry survives a
// process restart and can be shared with sidecar readers. The retention
// window doubles as the key TTL, which makes Cleanup a no-op here.
//
// Writes are read-modify-write cycles serialized by a store-level mutex; the
// scheduler runs in the same process, so there is no cross-process writer to
// race with.
type JobStore struct {
	mu        sync.Mutex
	client    Client
	retention time.Duration
	log       *zerolog.Logger
}

func NewJobStore(client Client, retention time.Duration, logger *zerolog.Logger) *JobStore {
	compLog := logger.With().Str("component", "RedisJobStore").Logger()
	return &JobStore{
		client:    client,
		retention: retention,
		log:       &compLog,
	}
}

func jobKey(id string) string { return fmt.Sprintf("compare_job:%s", id) }

func (s *JobStore) Create(ctx context.Context, tasks []model.PairRef, maxAutoRetries int) (*model.Job, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("create job with no tasks: %w", domain.ErrInvalidArgument)
	}
	job := model.NewJob(uuid.NewString(), tasks, maxAutoRetries)
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	s.log.Debug().Str("job_id", job.ID).Int("segments", job.TotalSegments).Msg("job created")
	return job, nil
}

func (s *JobStore) Find(ctx context.Context, id string) (*model.Job, error) {
	return s.load(ctx, id)
}

func (s *JobStore) RecordTransition(ctx context.Context, id string, segment int, next model.SegmentStatus, tr store.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := job.ApplyTransition(segment, next, tr.Result, tr.Error, tr.Attempt, tr.Elapsed); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidArgument)
	}
	return s.save(ctx, job)
}

func (s *JobStore) MarkTerminal(ctx context.Context, id string, status model.JobStatus, agg *model.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	job.Finish(status, agg)
	return s.save(ctx, job)
}

// Cleanup is satisfied by the per-key TTL set on every write.
func (s *JobStore) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	return 0, nil
}

func (s *JobStore) load(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *JobStore) save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), data, s.retention); err != nil {
		return fmt.Errorf("redis set job: %w", err)
	}
	return nil
}
