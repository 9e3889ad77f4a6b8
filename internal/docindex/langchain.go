package docindex

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI embedding defaults
const (
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingDimension = 1536
)

// LangchainConfig configures the OpenAI embedder
type LangchainConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// LangchainEmbedder produces OpenAI embeddings through langchaingo
type LangchainEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
}

// NewLangchainEmbedder creates an embedder for the configured OpenAI model
func NewLangchainEmbedder(cfg LangchainConfig) (*LangchainEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultEmbeddingDimension
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return NewLangchainEmbedderFrom(embedder, cfg.Dimension), nil
}

// NewLangchainEmbedderFrom wraps an existing langchaingo embedder
func NewLangchainEmbedderFrom(e embeddings.Embedder, dimension int) *LangchainEmbedder {
	return &LangchainEmbedder{embedder: e, dimension: dimension}
}

func (e *LangchainEmbedder) Dimension() int {
	return e.dimension
}

func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding has dimension %d, configured %d", len(vec), e.dimension)
	}
	return vec, nil
}

func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
