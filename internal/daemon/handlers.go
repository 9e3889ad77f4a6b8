package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
	"github.com/felixgeelhaar/nahw/internal/queue"
)

const (
	maxBodyBytes = 64 << 10

	// LogWarningHeader carries log sink failures of an otherwise successful evaluation
	LogWarningHeader = "X-Log-Warning"
)

// EvaluationResponse is the envelope returned by POST /v1/evaluations
type EvaluationResponse struct {
	ID         uuid.UUID                `json:"id"`
	LessonID   string                   `json:"lesson_id"`
	Provider   string                   `json:"provider"`
	Result     *domain.EvaluationResult `json:"result"`
	Tier       domain.ScoreTier         `json:"tier"`
	Warnings   []string                 `json:"warnings,omitempty"`
	DurationMS int64                    `json:"duration_ms"`
}

func newEvaluationResponse(e *evaluation.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:         e.ID,
		LessonID:   e.LessonID,
		Provider:   e.Provider,
		Result:     e.Result,
		Tier:       e.Tier,
		Warnings:   e.WarningMessages(),
		DurationMS: e.Duration.Milliseconds(),
	}
}

// JobResponse is returned when an evaluation is queued
type JobResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (evaluation.Request, error) {
	var req evaluation.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return req, nil
}

// evaluate decodes the body and runs the evaluation, writing any error
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) (*evaluation.Evaluation, bool) {
	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}

	eval, err := s.cfg.Evaluator.EvaluateRequest(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}

	if len(eval.Warnings) > 0 {
		w.Header().Set(LogWarningHeader, strings.Join(eval.WarningMessages(), "; "))
	}
	return eval, true
}

// handleEvaluate returns the bare result contract
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	eval, ok := s.evaluate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eval.Result)
}

func (s *Server) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, ok := s.evaluate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newEvaluationResponse(eval))
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, domain.ErrQueueDisabled)
		return
	}

	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Grounding != "" && !domain.GroundingPolicy(req.Grounding).Valid() {
		s.writeError(w, r, fmt.Errorf("%w: %q", domain.ErrInvalidGrounding, req.Grounding))
		return
	}
	if _, err := s.cfg.Lessons.Get(req.LessonID); err != nil {
		s.writeError(w, r, err)
		return
	}

	job := queue.NewEvaluationJob(req.LessonID, req.LearnerAnswer, req.Provider, req.Grounding)
	if err := s.cfg.Jobs.PublishEvaluationJob(r.Context(), job); err != nil {
		if domain.ErrorKind(err) == domain.KindInternal {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{
				Error:   "failed to enqueue evaluation",
				Status:  http.StatusServiceUnavailable,
				Kind:    "queue_unavailable",
				Details: err.Error(),
			})
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, JobResponse{JobID: job.ID})
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lessons": s.cfg.Lessons.Summaries(),
	})
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	l, err := s.cfg.Lessons.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.cfg.Providers.Providers(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	providers := s.cfg.Providers.Providers()
	var def string
	for _, p := range providers {
		if p.Default {
			def = p.Name
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "running",
		"version":          Version,
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"default_provider": def,
		"providers":        len(providers),
		"lessons":          len(s.cfg.Lessons.Summaries()),
		"retrieval":        s.cfg.Status.Retrieval,
		"sinks":            s.cfg.Status.Sinks,
		"grounding":        s.cfg.Status.Grounding,
		"queue":            s.cfg.Jobs != nil,
	})
}
