package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
	"github.com/felixgeelhaar/nahw/internal/llm"
)

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

// Server exposes the evaluator as MCP tools
type Server struct {
	mcpServer *server.Server
	evaluator Evaluator
	lessons   LessonCatalog
	providers ProviderLister
	logger    *slog.Logger
}

// Config contains configuration for the MCP server
type Config struct {
	Evaluator Evaluator
	Lessons   LessonCatalog
	Providers ProviderLister
	Version   string
	Logger    *slog.Logger
}

// NewServer creates a new MCP server for nahw
func NewServer(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		evaluator: cfg.Evaluator,
		lessons:   cfg.Lessons,
		providers: cfg.Providers,
		logger:    logger,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "nahw",
		Version: version,
	}, server.WithInstructions(`
nahw grades a learner's recall of an Arabic grammar lesson against the
textbook and the lesson's key points.

Available tools:
- nahw_lessons: List lessons, or fetch one lesson by id
- nahw_providers: List the model providers that can act as judge
- nahw_evaluate: Grade a learner answer for a lesson

Scores map to tiers: 90 and above Excellent, 70 to 89 Good, below 70 Needs review.
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("nahw_evaluate").
		Description("Grade a learner's recall answer for a lesson. Returns score, correct, incorrect and missed points, feedback and a rewritten answer.").
		Handler(s.handleEvaluate)

	s.mcpServer.Tool("nahw_lessons").
		Description("List available lessons, or return one lesson with its key points when id is given.").
		Handler(s.handleLessons)

	s.mcpServer.Tool("nahw_providers").
		Description("List the configured model providers and which one is the default.").
		Handler(s.handleProviders)
}

// Input/Output types for tools

type EvaluateInput struct {
	LessonID      string `json:"lesson_id" jsonschema:"description=Lesson id such as lesson1"`
	LearnerAnswer string `json:"learner_answer" jsonschema:"description=The learner's answer in Arabic or English"`
	Provider      string `json:"provider,omitempty" jsonschema:"description=Model provider; empty selects the default"`
	Grounding     string `json:"grounding,omitempty" jsonschema:"description=Grounding policy,enum=strict,enum=preferred"`
}

type EvaluateOutput struct {
	EvaluationID string                   `json:"evaluation_id"`
	LessonID     string                   `json:"lesson_id"`
	Provider     string                   `json:"provider"`
	Tier         string                   `json:"tier"`
	Result       *domain.EvaluationResult `json:"result"`
	Warnings     []string                 `json:"warnings,omitempty"`
}

type LessonsInput struct {
	ID string `json:"id,omitempty" jsonschema:"description=Return this lesson in full instead of the list"`
}

type LessonsOutput struct {
	Lessons []domain.LessonSummary `json:"lessons,omitempty"`
	Lesson  *domain.Lesson         `json:"lesson,omitempty"`
}

type ProvidersInput struct{}

type ProvidersOutput struct {
	Providers []llm.ProviderInfo `json:"providers"`
	Default   string             `json:"default"`
}

// Tool handlers

func (s *Server) handleEvaluate(ctx context.Context, input EvaluateInput) (EvaluateOutput, error) {
	if s.evaluator == nil {
		return EvaluateOutput{}, fmt.Errorf("evaluation is not configured")
	}

	eval, err := s.evaluator.EvaluateRequest(ctx, evaluation.Request{
		LearnerAnswer: input.LearnerAnswer,
		LessonID:      input.LessonID,
		Provider:      input.Provider,
		Grounding:     input.Grounding,
	})
	if err != nil {
		s.logger.Warn("mcp evaluation failed", "lesson_id", input.LessonID, "kind", domain.ErrorKind(err), "error", err)
		return EvaluateOutput{}, fmt.Errorf("%s: %w", domain.ErrorKind(err), err)
	}

	return EvaluateOutput{
		EvaluationID: eval.ID.String(),
		LessonID:     eval.LessonID,
		Provider:     eval.Provider,
		Tier:         string(eval.Tier),
		Result:       eval.Result,
		Warnings:     eval.WarningMessages(),
	}, nil
}

func (s *Server) handleLessons(ctx context.Context, input LessonsInput) (LessonsOutput, error) {
	if s.lessons == nil {
		return LessonsOutput{}, fmt.Errorf("lesson catalog is not configured")
	}
	if input.ID != "" {
		l, err := s.lessons.Get(input.ID)
		if err != nil {
			return LessonsOutput{}, err
		}
		return LessonsOutput{Lesson: l}, nil
	}
	return LessonsOutput{Lessons: s.lessons.Summaries()}, nil
}

func (s *Server) handleProviders(ctx context.Context, input ProvidersInput) (ProvidersOutput, error) {
	if s.providers == nil {
		return ProvidersOutput{}, fmt.Errorf("no providers configured")
	}
	out := ProvidersOutput{Providers: s.providers.Providers()}
	for _, p := range out.Providers {
		if p.Default {
			out.Default = p.Name
		}
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
