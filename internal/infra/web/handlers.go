package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/infra/logging"
	"clipcompare/internal/usecase"
)

// ComparisonService is the slice of the use case the handlers need.
type ComparisonService interface {
	SubmitBatch(ctx context.Context, pairs []model.PairRef) (*usecase.SubmitReceipt, error)
	Progress(ctx context.Context, jobID string) (*model.Job, error)
	RetryFailed(ctx context.Context, jobID string, segments []int) (*usecase.SubmitReceipt, error)
}

type submitRequest struct {
	Pairs []model.PairRef `json:"pairs"`
}

type submitResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	TotalSegments int    `json:"total_segments"`
}

type retryRequest struct {
	Segments []int `json:"segments"`
}

type violationJSON struct {
	Segment int    `json:"segment"`
	Ref     string `json:"ref"`
	Reason  string `json:"reason"`
}

type jobResponse struct {
	ID                     string                  `json:"id"`
	Status                 string                  `json:"status"`
	Progress               int                     `json:"progress"`
	TotalSegments          int                     `json:"total_segments"`
	CompletedCount         int                     `json:"completed_count"`
	FailedCount            int                     `json:"failed_count"`
	InProgressCount        int                     `json:"in_progress_count"`
	PendingCount           int                     `json:"pending_count"`
	SegmentStatuses        []model.SegmentStatus   `json:"segment_statuses"`
	SegmentResults         []*model.AnalysisResult `json:"segment_results"`
	SegmentErrors          []string                `json:"segment_errors"`
	RetryAttempts          []int                   `json:"retry_attempts"`
	StartTime              time.Time               `json:"start_time"`
	EstimatedRemainingMs   int64                   `json:"estimated_time_remaining_ms"`
	OverallMatchPercentage *float64                `json:"overall_match_percentage"`
	Aggregate              *model.BatchResult      `json:"aggregate,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.compareUC.SubmitBatch(r.Context(), req.Pairs)
	if err != nil {
		s.writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:         receipt.JobID,
		Status:        string(receipt.Status),
		TotalSegments: receipt.TotalSegments,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ctx := logging.WithJobID(r.Context(), jobID)

	job, err := s.compareUC.Progress(ctx, jobID)
	if err != nil {
		s.writeError(w, logging.With(ctx, s.log), err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ctx := logging.WithJobID(r.Context(), jobID)

	var req retryRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	receipt, err := s.compareUC.RetryFailed(ctx, jobID, req.Segments)
	if err != nil {
		s.writeError(w, logging.With(ctx, s.log), err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:         receipt.JobID,
		Status:        string(receipt.Status),
		TotalSegments: receipt.TotalSegments,
	})
}

func toJobResponse(job *model.Job) jobResponse {
	resp := jobResponse{
		ID:                     job.ID,
		Status:                 string(job.Status),
		Progress:               job.Progress,
		TotalSegments:          job.TotalSegments,
		CompletedCount:         job.CompletedCount,
		FailedCount:            job.FailedCount,
		InProgressCount:        job.InProgress,
		PendingCount:           job.PendingCount(),
		SegmentStatuses:        make([]model.SegmentStatus, len(job.Segments)),
		SegmentResults:         make([]*model.AnalysisResult, len(job.Segments)),
		SegmentErrors:          make([]string, len(job.Segments)),
		RetryAttempts:          make([]int, len(job.Segments)),
		StartTime:              job.StartTime,
		EstimatedRemainingMs:   job.EstimatedRemaining.Milliseconds(),
		OverallMatchPercentage: job.OverallMatchPercentage(),
		Aggregate:              job.Aggregate,
	}
	for i := range job.Segments {
		seg := &job.Segments[i]
		resp.SegmentStatuses[i] = seg.Status
		resp.SegmentErrors[i] = seg.Error
		resp.RetryAttempts[i] = seg.RetryAttempts
		// results stay null until the segment completes
		if seg.Status == model.SegmentStatusCompleted {
			resp.SegmentResults[i] = seg.Result
		}
	}
	return resp
}

func (s *Server) writeError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		violations := make([]violationJSON, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			violations = append(violations, violationJSON{Segment: v.Segment, Ref: v.Ref, Reason: v.Reason.Error()})
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "batch validation failed",
			"violations": violations,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrJobNotCompleted), errors.Is(err, domain.ErrNoRetryContext):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNoFailedSegments), errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
