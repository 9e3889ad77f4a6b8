package docindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/samber/lo"
)

// PassageSeparator joins retrieved passages in the context string.
const PassageSeparator = "\n---\n"

// DefaultTopK is the number of passages retrieved when none is configured.
const DefaultTopK = 4

// Retriever embeds a query and looks up the closest textbook passages
type Retriever struct {
	store    VectorStore
	embedder Embedder
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a retriever. topK below 1 falls back to DefaultTopK.
func NewRetriever(store VectorStore, embedder Embedder, topK int, logger *slog.Logger) *Retriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, embedder: embedder, topK: topK, logger: logger}
}

// TopK returns the configured passage count
func (r *Retriever) TopK() int {
	return r.topK
}

// Search returns the k passages most similar to query, best first. k must
// be positive.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidRequest, k)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &domain.RetrievalUnavailableError{Source: "embedder", Err: err}
	}

	results, err := r.store.Nearest(ctx, vec, k)
	if err != nil {
		var unavailable *domain.RetrievalUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &domain.RetrievalUnavailableError{Source: "vector store", Err: err}
	}
	return results, nil
}

// Retrieve returns the contents of the k closest passages joined with
// PassageSeparator. An empty result is an error, never an empty context.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (string, error) {
	results, err := r.Search(ctx, query, k)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", &domain.RetrievalUnavailableError{Source: "vector store", Err: errors.New("no passages matched")}
	}

	r.logger.Debug("retrieved passages",
		"count", len(results),
		"best_score", results[0].Score,
		"chunks", strings.Join(lo.Map(results, func(s SearchResult, _ int) string { return s.ChunkID }), ","))

	return strings.Join(lo.Map(results, func(s SearchResult, _ int) string {
		return s.Content
	}), PassageSeparator), nil
}

// String describes the retriever for status output
func (r *Retriever) String() string {
	return fmt.Sprintf("top_k=%d dimension=%d", r.topK, r.embedder.Dimension())
}
