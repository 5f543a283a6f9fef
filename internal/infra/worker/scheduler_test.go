package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/store"
	"clipcompare/internal/infra/store/memory"

	"github.com/rs/zerolog"
)

// mockAnalyzer drives outcomes per pair and tracks how many calls overlap.
type mockAnalyzer struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	attempts    map[string]int
	delay       time.Duration
	fn          func(pair model.PairRef, attempt int) (*model.AnalysisResult, error)
}

func newMockAnalyzer(fn func(pair model.PairRef, attempt int) (*model.AnalysisResult, error)) *mockAnalyzer {
	return &mockAnalyzer{attempts: make(map[string]int), fn: fn}
}

func (m *mockAnalyzer) Provider() string { return "mock" }

func (m *mockAnalyzer) Analyze(ctx context.Context, pair model.PairRef) (*model.AnalysisResult, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.attempts[pair.UserRef]++
	attempt := m.attempts[pair.UserRef]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.fn(pair, attempt)
}

// spyStore records the transition sequence while delegating to a real store.
type spyStore struct {
	store.JobStore
	mu          sync.Mutex
	transitions []spiedTransition
}

type spiedTransition struct {
	segment int
	status  model.SegmentStatus
}

func (s *spyStore) RecordTransition(ctx context.Context, id string, segment int, next model.SegmentStatus, tr store.Transition) error {
	s.mu.Lock()
	s.transitions = append(s.transitions, spiedTransition{segment: segment, status: next})
	s.mu.Unlock()
	return s.JobStore.RecordTransition(ctx, id, segment, next, tr)
}

func (s *spyStore) countFor(segment int, status model.SegmentStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tr := range s.transitions {
		if tr.segment == segment && tr.status == status {
			n++
		}
	}
	return n
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func pairs(n int) []model.PairRef {
	out := make([]model.PairRef, n)
	for i := range out {
		out[i] = model.PairRef{
			InstructorRef: "instructor-" + string(rune('a'+i)) + ".mp4",
			UserRef:       "user-" + string(rune('a'+i)) + ".mp4",
		}
	}
	return out
}

func waitTerminal(t *testing.T, s store.JobStore, id string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Find(context.Background(), id)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if job.Status != model.JobStatusProcessing {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return nil
}

func launch(t *testing.T, s store.JobStore, sched *Scheduler, tasks []model.PairRef, maxAutoRetries int) *model.Job {
	t.Helper()
	job, err := s.Create(context.Background(), tasks, maxAutoRetries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sched.Launch(context.Background(), job); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	return job
}

func TestAllSegmentsSucceed(t *testing.T) {
	jobStore := memory.NewJobStore(testLogger())
	analyzer := newMockAnalyzer(func(pair model.PairRef, attempt int) (*model.AnalysisResult, error) {
		return &model.AnalysisResult{MatchPercentage: 80}, nil
	})
	sched := NewScheduler(jobStore, analyzer, 4, 0, testLogger())

	job := launch(t, jobStore, sched, pairs(5), 1)
	final := waitTerminal(t, jobStore, job.ID)

	if final.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.CompletedCount != 5 || final.FailedCount != 0 {
		t.Errorf("completed=%d failed=%d, want 5/0", final.CompletedCount, final.FailedCount)
	}
	if final.Progress != 100 {
		t.Errorf("progress = %d, want 100", final.Progress)
	}
	if final.Aggregate == nil || final.Aggregate.OverallMatchPercentage == nil || *final.Aggregate.OverallMatchPercentage != 80 {
		t.Errorf("aggregate = %+v, want overall 80", final.Aggregate)
	}
}

func TestPermanentFailureDoesNotAbortBatch(t *testing.T) {
	jobStore := memory.NewJobStore(testLogger())
	spy := &spyStore{JobStore: jobStore}
	analyzer := newMockAnalyzer(func(pair model.PairRef, attempt int) (*model.AnalysisResult, error) {
		if pair.UserRef == "user-b.mp4" {
			return nil, errors.New("upstream rejected the clip")
		}
		return &model.AnalysisResult{MatchPercentage: 90}, nil
	})
	sched := NewScheduler(spy, analyzer, 4, 0, testLogger())

	job := launch(t, spy, sched, pairs(3), 1)
	final := waitTerminal(t, spy, job.ID)

	want := []model.SegmentStatus{
		model.SegmentStatusCompleted,
		model.SegmentStatusError,
		model.SegmentStatusCompleted,
	}
	for i, w := range want {
		if final.Segments[i].Status != w {
			t.Errorf("segment %d status = %s, want %s", i, final.Segments[i].Status, w)
		}
	}
	if final.FailedCount != 1 || final.CompletedCount != 2 {
		t.Errorf("failed=%d completed=%d, want 1/2", final.FailedCount, final.CompletedCount)
	}
	if final.Status != model.JobStatusCompleted {
		t.Errorf("job status = %s; finishing with failures still means finished running", final.Status)
	}
	if final.Segments[1].RetryAttempts != 1 {
		t.Errorf("retryAttempts = %d, want 1", final.Segments[1].RetryAttempts)
	}
	// one automatic retry: the failing segment passes through retrying exactly once
	if got := spy.countFor(1, model.SegmentStatusRetrying); got != 1 {
		t.Errorf("segment 1 entered retrying %d times, want 1", got)
	}
	if final.Segments[1].Error == "" {
		t.Error("failed segment carries no error message")
	}
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	jobStore := memory.NewJobStore(testLogger())
	analyzer := newMockAnalyzer(func(pair model.PairRef, attempt int) (*model.AnalysisResult, error) {
		if pair.UserRef == "user-a.mp4" && attempt == 1 {
			return nil, errors.New("transient hiccup")
		}
		return &model.AnalysisResult{MatchPercentage: 70}, nil
	})
	sched := NewScheduler(jobStore, analyzer, 2, 0, testLogger())

	job := launch(t, jobStore, sched, pairs(2), 1)
	final := waitTerminal(t, jobStore, job.ID)

	if final.CompletedCount != 2 || final.FailedCount != 0 {
		t.Fatalf("completed=%d failed=%d, want 2/0", final.CompletedCount, final.FailedCount)
	}
	if final.Segments[0].Error != "" {
		t.Errorf("recovered segment still carries error %q", final.Segments[0].Error)
	}
	if final.Segments[0].RetryAttempts != 1 {
		t.Errorf("retryAttempts = %d, want 1", final.Segments[0].RetryAttempts)
	}
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	jobStore := memory.NewJobStore(testLogger())
	analyzer := newMockAnalyzer(func(pair model.PairRef, attempt int) (*model.AnalysisResult, error) {
		return &model.AnalysisResult{MatchPercentage: 50}, nil
	})
	analyzer.delay = 30 * time.Millisecond
	sched := NewScheduler(jobStore, analyzer, 3, 0, testLogger())

	job := launch(t, jobStore, sched, pairs(8), 0)
	waitTerminal(t, jobStore, job.ID)

	if analyzer.maxInFlight > 3 {
		t.Fatalf("max in-flight = %d, want <= 3", analyzer.maxInFlight)
	}
	analyzer.mu.Lock()
	calls := len(analyzer.attempts)
	analyzer.mu.Unlock()
	if calls != 8 {
		t.Errorf("distinct pairs analyzed = %d, want 8", calls)
	}
}

func TestTimeoutBecomesRetryableFailure(t *testing.T) {
	jobStore := memory.NewJobStore(testLogger())
	analyzer := newMockAnalyzer(func(pair model.PairRef, attempt int) (*model.AnalysisResult, error) {
		return &model.AnalysisResult{MatchPercentage: 50}, nil
	})
	analyzer.delay = 500 * time.Millisecond
	sched := NewScheduler(jobStore, analyzer, 1, 20*time.Millisecond, testLogger())

	job := launch(t, jobStore, sched, pairs(1), 0)
	final := waitTerminal(t, jobStore, job.ID)

	if final.Segments[0].Status != model.SegmentStatusError {
		t.Fatalf("status = %s, want error", final.Segments[0].Status)
	}
	if !strings.Contains(final.Segments[0].Error, "timed out") {
		t.Errorf("error = %q, want timeout classification", final.Segments[0].Error)
	}
	if final.Status != model.JobStatusCompleted {
		t.Errorf("job status = %s, want completed; a hung call must not wedge the batch", final.Status)
	}
}

func TestLaunchValidation(t *testing.T) {
	jobStore := memory.NewJobStore(testLogger())
	sched := NewScheduler(jobStore, nil, 4, 0, testLogger())
	if err := sched.Launch(context.Background(), &model.Job{}); err == nil {
		t.Fatal("expected error launching without analyzer")
	}
}
