package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/usecase"

	"github.com/rs/zerolog"
)

// mockService scripts the use-case layer per call.
type mockService struct {
	submitFn   func(pairs []model.PairRef) (*usecase.SubmitReceipt, error)
	progressFn func(jobID string) (*model.Job, error)
	retryFn    func(jobID string, segments []int) (*usecase.SubmitReceipt, error)

	lastRetrySegments []int
}

func (m *mockService) SubmitBatch(ctx context.Context, pairs []model.PairRef) (*usecase.SubmitReceipt, error) {
	return m.submitFn(pairs)
}

func (m *mockService) Progress(ctx context.Context, jobID string) (*model.Job, error) {
	return m.progressFn(jobID)
}

func (m *mockService) RetryFailed(ctx context.Context, jobID string, segments []int) (*usecase.SubmitReceipt, error) {
	m.lastRetrySegments = segments
	return m.retryFn(jobID, segments)
}

func newTestServer(svc ComparisonService, apiKey string) *httptest.Server {
	logger := zerolog.New(io.Discard)
	return httptest.NewServer(NewServer(svc, apiKey, &logger).Router())
}

func TestSubmitAccepted(t *testing.T) {
	svc := &mockService{
		submitFn: func(pairs []model.PairRef) (*usecase.SubmitReceipt, error) {
			if len(pairs) != 2 {
				t.Errorf("got %d pairs, want 2", len(pairs))
			}
			return &usecase.SubmitReceipt{JobID: "job-1", Status: model.JobStatusProcessing, TotalSegments: 2}, nil
		},
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	body := `{"pairs":[{"instructor_ref":"i0.mp4","user_ref":"u0.mp4"},{"instructor_ref":"i1.mp4","user_ref":"u1.mp4"}]}`
	resp, err := http.Post(srv.URL+"/api/v1/compare", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var got submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != "job-1" || got.Status != "processing" || got.TotalSegments != 2 {
		t.Errorf("response = %+v", got)
	}
}

func TestSubmitValidationFailure(t *testing.T) {
	svc := &mockService{
		submitFn: func(pairs []model.PairRef) (*usecase.SubmitReceipt, error) {
			return nil, &domain.ValidationError{Violations: []domain.SegmentViolation{
				{Segment: 0, Ref: "u0.mp4", Reason: fmt.Errorf("clip is 25m0s (limit 20m0s): %w", domain.ErrDurationExceeded)},
			}}
		},
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compare", "application/json",
		strings.NewReader(`{"pairs":[{"instructor_ref":"i0.mp4","user_ref":"u0.mp4"}]}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var got struct {
		Error      string          `json:"error"`
		Violations []violationJSON `json:"violations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Violations) != 1 || got.Violations[0].Segment != 0 || got.Violations[0].Ref != "u0.mp4" {
		t.Errorf("violations = %+v", got.Violations)
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	svc := &mockService{
		submitFn: func(pairs []model.PairRef) (*usecase.SubmitReceipt, error) {
			t.Error("service must not be called for a malformed body")
			return nil, nil
		},
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compare", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProgressShape(t *testing.T) {
	job := model.NewJob("job-2", []model.PairRef{
		{InstructorRef: "i0.mp4", UserRef: "u0.mp4"},
		{InstructorRef: "i1.mp4", UserRef: "u1.mp4"},
	}, 1)
	if err := job.ApplyTransition(0, model.SegmentStatusProcessing, nil, "", 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := job.ApplyTransition(0, model.SegmentStatusCompleted, &model.AnalysisResult{MatchPercentage: 90}, "", 0, 0); err != nil {
		t.Fatal(err)
	}

	svc := &mockService{
		progressFn: func(jobID string) (*model.Job, error) {
			if jobID != "job-2" {
				t.Errorf("jobID = %q", jobID)
			}
			return job, nil
		},
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/compare/job-2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "job-2" || got.TotalSegments != 2 || got.CompletedCount != 1 || got.PendingCount != 1 {
		t.Errorf("response = %+v", got)
	}
	if got.Progress != 50 {
		t.Errorf("progress = %d, want 50", got.Progress)
	}
	if got.SegmentResults[0] == nil || got.SegmentResults[0].MatchPercentage != 90 {
		t.Errorf("segment 0 result = %+v", got.SegmentResults[0])
	}
	if got.SegmentResults[1] != nil {
		t.Error("pending segment must have a null result")
	}
}

func TestProgressUnknownJob(t *testing.T) {
	svc := &mockService{
		progressFn: func(jobID string) (*model.Job, error) { return nil, domain.ErrJobNotFound },
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/compare/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRetryConflictWhileRunning(t *testing.T) {
	svc := &mockService{
		retryFn: func(jobID string, segments []int) (*usecase.SubmitReceipt, error) {
			return nil, fmt.Errorf("job %s is processing: %w", jobID, domain.ErrJobNotCompleted)
		},
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compare/job-3/retry", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRetryForwardsSegmentFilter(t *testing.T) {
	svc := &mockService{
		retryFn: func(jobID string, segments []int) (*usecase.SubmitReceipt, error) {
			return &usecase.SubmitReceipt{JobID: "job-5", Status: model.JobStatusProcessing, TotalSegments: len(segments)}, nil
		},
	}
	srv := newTestServer(svc, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/compare/job-4/retry", "application/json",
		strings.NewReader(`{"segments":[1,3]}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(svc.lastRetrySegments) != 2 || svc.lastRetrySegments[0] != 1 || svc.lastRetrySegments[1] != 3 {
		t.Errorf("segments = %v, want [1 3]", svc.lastRetrySegments)
	}
}

func TestAuthMiddleware(t *testing.T) {
	svc := &mockService{
		progressFn: func(jobID string) (*model.Job, error) {
			return model.NewJob(jobID, []model.PairRef{{}}, 1), nil
		},
	}
	srv := newTestServer(svc, "secret")
	defer srv.Close()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusForbidden},
		{"valid key", "Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/compare/job-6", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestHealthBypassesAuth(t *testing.T) {
	srv := newTestServer(&mockService{}, "secret")
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
