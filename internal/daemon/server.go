package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/nahw/internal/bootstrap"
	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
	"github.com/felixgeelhaar/nahw/internal/llm"
	"github.com/felixgeelhaar/nahw/internal/queue"
)

// Version is reported by /v1/status
var Version = "0.1.0"

// Evaluator runs evaluations addressed by lesson ID
type Evaluator interface {
	EvaluateRequest(ctx context.Context, req evaluation.Request) (*evaluation.Evaluation, error)
}

// LessonCatalog is the read side of the lesson registry
type LessonCatalog interface {
	Get(id string) (*domain.Lesson, error)
	Summaries() []domain.LessonSummary
}

// ProviderLister reports the registered judge providers
type ProviderLister interface {
	Providers() []llm.ProviderInfo
}

// JobPublisher enqueues asynchronous evaluations
type JobPublisher interface {
	PublishEvaluationJob(ctx context.Context, job *queue.EvaluationJob) error
}

// StatusInfo is static information shown by /v1/status
type StatusInfo struct {
	Retrieval string   `json:"retrieval"`
	Sinks     []string `json:"sinks"`
	Grounding string   `json:"grounding"`
}

// ServerConfig holds the dependencies of the daemon
type ServerConfig struct {
	Addr               string
	Evaluator          Evaluator
	Lessons            LessonCatalog
	Providers          ProviderLister
	Jobs               JobPublisher // nil when the queue is disabled
	Metrics            http.Handler // nil disables /metrics
	Status             StatusInfo
	RateLimitPerMinute int
	Logger             *slog.Logger
}

// ServerConfigFromApp fills a ServerConfig from a bootstrapped pipeline
func ServerConfigFromApp(app *bootstrap.App) ServerConfig {
	cfg := app.Config
	return ServerConfig{
		Addr:      net.JoinHostPort(cfg.Daemon.Bind, fmt.Sprint(cfg.Daemon.Port)),
		Evaluator: app.Evaluations,
		Lessons:   app.Lessons,
		Providers: app.Gateway,
		Metrics:   promhttp.HandlerFor(app.Prometheus, promhttp.HandlerOpts{}),
		Status: StatusInfo{
			Retrieval: app.Retriever.String(),
			Sinks:     app.Sinks.Names(),
			Grounding: cfg.Evaluation.Grounding,
		},
		RateLimitPerMinute: cfg.Daemon.RateLimitPerMinute,
		Logger:             app.Logger,
	}
}

// Server is the nahw HTTP daemon
type Server struct {
	cfg     ServerConfig
	logger  *slog.Logger
	router  *http.ServeMux
	limiter *rateLimiter
	server  *http.Server
	started time.Time
}

// NewServer creates the daemon
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Evaluator == nil || cfg.Lessons == nil || cfg.Providers == nil {
		return nil, errors.New("daemon: evaluator, lessons and providers are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  http.NewServeMux(),
		limiter: newRateLimiter(cfg.RateLimitPerMinute, logger),
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	// Evaluation
	s.router.HandleFunc("POST /evaluate", s.limiter.wrap(s.handleEvaluate))
	s.router.HandleFunc("POST /v1/evaluations", s.limiter.wrap(s.handleCreateEvaluation))
	s.router.HandleFunc("POST /v1/evaluations/jobs", s.limiter.wrap(s.handleCreateJob))

	// Catalog
	s.router.HandleFunc("GET /v1/lessons", s.handleListLessons)
	s.router.HandleFunc("GET /v1/lessons/{id}", s.handleGetLesson)
	s.router.HandleFunc("GET /v1/providers", s.handleListProviders)

	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	if s.cfg.Metrics != nil {
		s.router.Handle("GET /metrics", s.cfg.Metrics)
	}
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return correlationIDMiddleware(recoveryMiddleware(s.logger, loggingMiddleware(s.logger, s.router)))
}

// Start serves until Shutdown
func (s *Server) Start() error {
	s.logger.Info("starting nahw daemon", "addr", s.server.Addr, "queue", s.cfg.Jobs != nil)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon")
	err := s.server.Shutdown(ctx)
	if cerr := s.limiter.Close(); cerr != nil {
		s.logger.Warn("close rate limiter", "error", cerr)
	}
	return err
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to its HTTP status and error body
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, message := classify(err)
	if status >= 500 {
		s.logger.Error("request failed",
			"correlation_id", GetCorrelationID(r.Context()),
			"kind", kind,
			"error", err,
		)
	}
	writeJSON(w, status, errorBody{
		Error:   message,
		Status:  status,
		Kind:    kind,
		Details: err.Error(),
	})
}

// classify returns the status code, error kind and summary for err
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "model provider rate limit reached"
	case errors.Is(err, domain.ErrQueueDisabled):
		return http.StatusServiceUnavailable, "queue_disabled", "asynchronous evaluation is not enabled"
	}

	kind := domain.ErrorKind(err)
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest, kind, "invalid request"
	case domain.KindUnknownProvider:
		return http.StatusBadRequest, kind, "unknown provider"
	case domain.KindLessonNotFound:
		return http.StatusNotFound, kind, "lesson not found"
	case domain.KindRetrievalUnavailable:
		return http.StatusServiceUnavailable, kind, "textbook retrieval is unavailable"
	case domain.KindBackend:
		return http.StatusBadGateway, kind, "model backend failed"
	case domain.KindParse:
		return http.StatusBadGateway, kind, "model output is not valid JSON"
	case domain.KindSchema:
		return http.StatusBadGateway, kind, "model output does not match the result contract"
	case domain.KindCanceled:
		return http.StatusRequestTimeout, kind, "request canceled"
	}
	return http.StatusInternalServerError, kind, "internal error"
}
