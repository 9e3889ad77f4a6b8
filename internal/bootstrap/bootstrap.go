// Package bootstrap builds the evaluation pipeline from configuration. The
// daemon, the CLI and the MCP server all start from New.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/felixgeelhaar/nahw/internal/config"
	"github.com/felixgeelhaar/nahw/internal/docindex"
	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evallog"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
	"github.com/felixgeelhaar/nahw/internal/lesson"
	"github.com/felixgeelhaar/nahw/internal/llm"
	"github.com/felixgeelhaar/nahw/internal/prompt"
	"github.com/felixgeelhaar/nahw/internal/storage/sqlite"
	"github.com/felixgeelhaar/nahw/internal/verdict"
)

// App holds the wired pipeline
type App struct {
	Config      *config.LocalConfig
	Logger      *slog.Logger
	Registry    *llm.Registry
	Gateway     *llm.Gateway
	Lessons     *lesson.Registry
	Embedder    docindex.Embedder
	Store       docindex.VectorStore
	Retriever   *docindex.Retriever
	Sinks       *evallog.Fanout
	Metrics     *evaluation.Metrics
	Prometheus  *prometheus.Registry
	Evaluations *evaluation.Service

	closers []io.Closer
}

// New validates cfg and builds every component. Close releases them.
func New(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry, err = BuildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Registry)

	a.Gateway, err = BuildGateway(a.Registry, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Lessons = lesson.NewRegistry(lesson.NewLoader(cfg.Lessons.Path))
	if err := a.Lessons.Load(); err != nil {
		return nil, fmt.Errorf("load lessons: %w", err)
	}

	a.Embedder, err = BuildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	var storeCloser io.Closer
	a.Store, storeCloser, err = BuildVectorStore(cfg, a.Embedder.Dimension(), logger)
	if err != nil {
		return nil, err
	}
	if storeCloser != nil {
		a.closers = append(a.closers, storeCloser)
	}
	a.Retriever = docindex.NewRetriever(a.Store, a.Embedder, cfg.Retrieval.TopK, logger)

	a.Sinks, err = BuildSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Sinks)

	a.Prometheus = prometheus.NewRegistry()
	a.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = evaluation.NewMetrics(a.Prometheus)

	grounding, err := domain.ParseGroundingPolicy(cfg.Evaluation.Grounding)
	if err != nil {
		return nil, err
	}
	a.Evaluations = evaluation.NewService(
		a.Retriever,
		a.Gateway,
		a.Sinks,
		evaluation.Config{TopK: cfg.Retrieval.TopK, Grounding: grounding},
		evaluation.WithLessons(a.Lessons),
		evaluation.WithMetrics(a.Metrics),
		evaluation.WithLogger(logger),
	)

	logger.Info("evaluation pipeline ready",
		"providers", a.Registry.List(),
		"default_provider", a.Registry.DefaultName(),
		"retrieval", a.Retriever.String(),
		"sinks", a.Sinks.Names(),
		"lessons", a.Lessons.Count(),
		"grounding", grounding,
	)
	return a, nil
}

// Warm loads the vector index ahead of the first request
func (a *App) Warm(ctx context.Context) error {
	if w, ok := a.Store.(interface{ Warm(context.Context) error }); ok {
		return w.Warm(ctx)
	}
	return nil
}

// Close releases components in reverse build order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// BuildRegistry creates a resilient provider for every enabled provider
func BuildRegistry(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	resilience := llm.DefaultResilientConfig()
	resilience.MaxRetries = cfg.LLM.MaxRetries
	resilience.Logger = logger

	names := cfg.EnabledProviders()
	sort.Strings(names)
	for _, name := range names {
		pc := cfg.LLM.Providers[name]
		provider, err := newProvider(ctx, name, pc)
		if err != nil {
			registry.Close()
			return nil, err
		}
		registry.Register(name, llm.NewResilientProvider(provider, resilience))
		logger.Info("registered LLM provider", "name", name, "model", pc.Model)
	}

	if cfg.LLM.DefaultProvider != "" {
		if err := registry.SetDefault(cfg.LLM.DefaultProvider); err != nil {
			registry.Close()
			return nil, &domain.ConfigurationError{Field: "llm.default_provider", Message: err.Error()}
		}
	}
	return registry, nil
}

func newProvider(ctx context.Context, name string, pc *config.ProviderConfig) (llm.Provider, error) {
	switch name {
	case "openai":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model}), nil
	case "gemini":
		return llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: pc.APIKey, Endpoint: pc.URL, Model: pc.Model})
	case "claude":
		return llm.NewClaudeProvider(llm.ClaudeConfig{APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model}), nil
	case "ollama":
		return llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: pc.URL, Model: pc.Model}), nil
	}
	return nil, &domain.ConfigurationError{Field: "llm.providers." + name, Message: "unsupported provider"}
}

// BuildGateway creates the model gateway with the result schema attached
func BuildGateway(registry llm.LLMRegistry, cfg *config.LocalConfig, logger *slog.Logger) (*llm.Gateway, error) {
	schema, err := verdict.ResponseSchema()
	if err != nil {
		return nil, fmt.Errorf("build response schema: %w", err)
	}

	return llm.NewGateway(registry, llm.GatewayConfig{
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		System:      prompt.SystemInstruction,
		Schema: &llm.Schema{
			Name:        verdict.SchemaName,
			Description: "Record the evaluation of the learner's answer",
			JSON:        schema,
		},
		Logger: logger,
	}), nil
}

// BuildEmbedder returns the configured embedder
func BuildEmbedder(cfg *config.LocalConfig) (docindex.Embedder, error) {
	switch cfg.Retrieval.Embedder {
	case config.EmbedderOpenAI:
		return docindex.NewLangchainEmbedder(docindex.LangchainConfig{
			APIKey:    cfg.OpenAIKey(),
			Model:     cfg.Retrieval.EmbeddingModel,
			Dimension: cfg.Retrieval.Dimension,
		})
	case config.EmbedderKeyword, "":
		return docindex.NewKeywordEmbedder(cfg.Retrieval.Dimension), nil
	}
	return nil, &domain.ConfigurationError{Field: "retrieval.embedder", Message: "unsupported embedder " + cfg.Retrieval.Embedder}
}

// BuildVectorStore returns the read side of the configured index. The
// closer is nil when the store holds no resources.
func BuildVectorStore(cfg *config.LocalConfig, dimension int, logger *slog.Logger) (docindex.VectorStore, io.Closer, error) {
	switch cfg.Retrieval.Backend {
	case config.BackendPinecone:
		store, err := docindex.NewPineconeStore(pineconeConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendSQLite, "":
		path, err := cfg.IndexFile()
		if err != nil {
			return nil, nil, err
		}
		return docindex.NewFileIndex(path, dimension, logger), nil, nil
	}
	return nil, nil, &domain.ConfigurationError{Field: "retrieval.backend", Message: "unsupported backend " + cfg.Retrieval.Backend}
}

func pineconeConfig(cfg *config.LocalConfig) docindex.PineconeConfig {
	return docindex.PineconeConfig{
		APIKey:    cfg.Retrieval.Pinecone.APIKey,
		IndexName: cfg.Retrieval.Pinecone.Index,
		Namespace: cfg.Retrieval.Pinecone.Namespace,
	}
}

// BuildSinks opens the CSV log plus any optional SQLite and Postgres sinks
func BuildSinks(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (*evallog.Fanout, error) {
	csvSink, err := evallog.NewCSVSink(cfg.Log.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}
	sinks := []evallog.Sink{csvSink}

	if cfg.Log.SQLitePath != "" {
		s, err := evallog.NewSQLiteSink(cfg.Log.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite log: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Log.PostgresURL != "" {
		s, err := evallog.NewPostgresSink(ctx, cfg.Log.PostgresURL, cfg.Log.PostgresTable)
		if err != nil {
			evallog.NewFanout(logger, sinks...).Close()
			return nil, fmt.Errorf("open postgres log: %w", err)
		}
		sinks = append(sinks, s)
	}

	return evallog.NewFanout(logger, sinks...), nil
}

// Ingester writes chunks into the configured index
type Ingester struct {
	*docindex.Service
	close func() error
}

// Close finishes the index. For SQLite this seals the file so the
// daemon can open it read-only.
func (i *Ingester) Close() error {
	return i.close()
}

// NewIngester opens the write side of the configured index
func NewIngester(cfg *config.LocalConfig, logger *slog.Logger) (*Ingester, error) {
	if logger == nil {
		logger = slog.Default()
	}
	embedder, err := BuildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	chunker := docindex.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)

	if cfg.Retrieval.Backend == config.BackendPinecone {
		store, err := docindex.NewPineconeStore(pineconeConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &Ingester{
			Service: docindex.NewService(store, embedder, chunker, logger),
			close:   store.Close,
		}, nil
	}

	path, err := cfg.IndexFile()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return &Ingester{
		Service: docindex.NewService(docindex.NewIndex(db.DB), embedder, chunker, logger),
		close:   db.Seal,
	}, nil
}
