// Package evaluation runs the recall evaluation pipeline: retrieve textbook
// context, assemble the prompt, invoke the model, validate its verdict and
// append the exchange to the evaluation log.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/prompt"
	"github.com/felixgeelhaar/nahw/internal/verdict"
	"github.com/google/uuid"
)

// Retriever returns textbook passages relevant to a query
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (string, error)
}

// Gateway sends a prompt to a named language model
type Gateway interface {
	ResolveProvider(name string) (string, error)
	Invoke(ctx context.Context, prompt, provider string) (string, error)
}

// Recorder appends evaluation records; failures come back as warnings
type Recorder interface {
	Append(ctx context.Context, rec domain.LogRecord) []*domain.LoggingWarning
}

// Lessons looks up lessons by ID
type Lessons interface {
	Get(id string) (*domain.Lesson, error)
}

// Config holds the pipeline settings
type Config struct {
	TopK      int
	Grounding domain.GroundingPolicy
}

// Service orchestrates single evaluations. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	retriever Retriever
	gateway   Gateway
	recorder  Recorder
	lessons   Lessons
	cfg       Config
	builder   prompt.Builder
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLessons enables EvaluateRequest lookups by lesson ID
func WithLessons(l Lessons) Option {
	return func(s *Service) { s.lessons = l }
}

// WithMetrics records pipeline metrics
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the evaluation orchestrator
func NewService(retriever Retriever, gateway Gateway, recorder Recorder, cfg Config, opts ...Option) *Service {
	if cfg.TopK < 1 {
		cfg.TopK = 4
	}
	if !cfg.Grounding.Valid() {
		cfg.Grounding = domain.GroundingStrict
	}

	s := &Service{
		retriever: retriever,
		gateway:   gateway,
		recorder:  recorder,
		cfg:       cfg,
		builder:   prompt.NewBuilder(cfg.Grounding),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluation is the outcome of one successful evaluation
type Evaluation struct {
	ID        uuid.UUID
	LessonID  string
	Provider  string
	Grounding domain.GroundingPolicy
	Result    *domain.EvaluationResult
	Tier      domain.ScoreTier
	Warnings  []*domain.LoggingWarning
	Duration  time.Duration
}

// WarningMessages renders the log warnings for API responses
func (e *Evaluation) WarningMessages() []string {
	msgs := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		msgs[i] = w.Error()
	}
	return msgs
}

// Request is an evaluation addressed by lesson ID, as received by the
// HTTP, MCP and queue surfaces
type Request struct {
	LearnerAnswer string `json:"learnerAnswer"`
	LessonID      string `json:"lessonId"`
	Provider      string `json:"provider,omitempty"`
	Grounding     string `json:"grounding,omitempty"`
}

// EvaluateRequest resolves the lesson and grounding override, then runs
// Evaluate.
func (s *Service) EvaluateRequest(ctx context.Context, req Request) (*Evaluation, error) {
	if strings.TrimSpace(req.LearnerAnswer) == "" {
		return nil, s.fail(req.Provider, domain.ErrEmptyAnswer)
	}
	if s.lessons == nil {
		return nil, s.fail(req.Provider, fmt.Errorf("%w: no lesson catalog configured", domain.ErrLessonNotFound))
	}

	lesson, err := s.lessons.Get(req.LessonID)
	if err != nil {
		return nil, s.fail(req.Provider, err)
	}

	policy := s.cfg.Grounding
	if req.Grounding != "" {
		policy = domain.GroundingPolicy(req.Grounding)
		if !policy.Valid() {
			return nil, s.fail(req.Provider, fmt.Errorf("%w: %q (want strict or preferred)", domain.ErrInvalidGrounding, req.Grounding))
		}
	}

	return s.evaluate(ctx, req.LearnerAnswer, lesson, req.Provider, policy)
}

// Evaluate grades a learner's recall of lesson using the configured
// grounding policy. An empty provider selects the default model.
func (s *Service) Evaluate(ctx context.Context, answer string, lesson *domain.Lesson, provider string) (*Evaluation, error) {
	return s.evaluate(ctx, answer, lesson, provider, s.cfg.Grounding)
}

func (s *Service) evaluate(ctx context.Context, answer string, lesson *domain.Lesson, provider string, policy domain.GroundingPolicy) (*Evaluation, error) {
	start := s.now()

	if strings.TrimSpace(answer) == "" {
		return nil, s.fail(provider, domain.ErrEmptyAnswer)
	}
	if lesson == nil {
		return nil, s.fail(provider, fmt.Errorf("%w: no lesson given", domain.ErrLessonNotFound))
	}

	resolved, err := s.gateway.ResolveProvider(provider)
	if err != nil {
		return nil, s.fail(provider, err)
	}

	retrievalStart := s.now()
	retrieved, err := s.retriever.Retrieve(ctx, answer, s.cfg.TopK)
	s.metrics.observeRetrieval(s.now().Sub(retrievalStart))
	if err != nil {
		return nil, s.fail(resolved, fmt.Errorf("retrieve context: %w", err))
	}

	text := s.builder.Build(domain.EvaluationRequest{
		LearnerAnswer:    answer,
		LessonKeyPoints:  lesson.KeyPoints,
		RetrievedContext: retrieved,
		Provider:         resolved,
		Grounding:        policy,
	})

	raw, err := s.gateway.Invoke(ctx, text, resolved)
	if err != nil {
		return nil, s.fail(resolved, err)
	}

	result, err := verdict.Parse(raw)
	if err != nil {
		s.logger.Warn("model output rejected",
			"provider", resolved,
			"lesson", lesson.ID,
			"kind", domain.ErrorKind(err),
			"error", err)
		return nil, s.fail(resolved, fmt.Errorf("provider %s: %w", resolved, err))
	}

	eval := &Evaluation{
		ID:        uuid.New(),
		LessonID:  lesson.ID,
		Provider:  resolved,
		Grounding: policy,
		Result:    result,
		Tier:      domain.TierForScore(result.Score),
	}

	eval.Warnings = s.record(ctx, eval, text)
	eval.Duration = s.now().Sub(start)

	s.metrics.observeSuccess(resolved, lesson.ID, string(eval.Tier), result.Score, eval.Duration)
	s.logger.Info("evaluation completed",
		"id", eval.ID,
		"lesson", lesson.ID,
		"provider", resolved,
		"score", result.Score,
		"tier", eval.Tier,
		"warnings", len(eval.Warnings),
		"duration", eval.Duration)

	return eval, nil
}

// record appends the exchange to the log. It never fails the evaluation.
func (s *Service) record(ctx context.Context, eval *Evaluation, promptText string) []*domain.LoggingWarning {
	if s.recorder == nil {
		return nil
	}

	response, err := json.Marshal(eval.Result)
	if err != nil {
		w := &domain.LoggingWarning{Sink: "encode", Err: err}
		s.metrics.observeLogWarning(w.Sink)
		return []*domain.LoggingWarning{w}
	}

	// The log append outlives a caller that disconnects after the verdict
	warnings := s.recorder.Append(context.WithoutCancel(ctx), domain.LogRecord{
		ID:        eval.ID,
		LessonID:  eval.LessonID,
		Provider:  eval.Provider,
		Prompt:    promptText,
		Response:  string(response),
		CreatedAt: s.now().UTC(),
	})
	for _, w := range warnings {
		s.metrics.observeLogWarning(w.Sink)
	}
	return warnings
}

func (s *Service) fail(provider string, err error) error {
	s.metrics.observeFailure(provider, domain.ErrorKind(err))
	return err
}
