package docindex

import (
	"context"
	"errors"
	"testing"
)

// fakeLangchain satisfies langchaingo's embeddings.Embedder
type fakeLangchain struct {
	dim int
	err error
}

func (f fakeLangchain) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeLangchain) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dim), nil
}

func TestLangchainEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewLangchainEmbedderFrom(fakeLangchain{dim: 8}, 8)

	vec, err := e.Embed(ctx, "هذا")
	if err != nil || len(vec) != 8 {
		t.Fatalf("Embed() = %d, %v", len(vec), err)
	}
	vecs, err := e.EmbedBatch(ctx, []string{"a", "b"})
	if err != nil || len(vecs) != 2 {
		t.Fatalf("EmbedBatch() = %d, %v", len(vecs), err)
	}
	if e.Dimension() != 8 {
		t.Errorf("Dimension() = %d", e.Dimension())
	}
}

func TestLangchainEmbedder_DimensionMismatch(t *testing.T) {
	e := NewLangchainEmbedderFrom(fakeLangchain{dim: 4}, 8)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestLangchainEmbedder_Error(t *testing.T) {
	e := NewLangchainEmbedderFrom(fakeLangchain{err: errors.New("401")}, 8)
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error")
	}
}

func TestNewLangchainEmbedder_Defaults(t *testing.T) {
	e, err := NewLangchainEmbedder(LangchainConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewLangchainEmbedder() error = %v", err)
	}
	if e.Dimension() != DefaultEmbeddingDimension {
		t.Errorf("Dimension() = %d", e.Dimension())
	}
}

func TestNewPineconeStore_RequiresIndex(t *testing.T) {
	_, err := NewPineconeStore(PineconeConfig{APIKey: "pc-test"})
	if err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestVectorPrefix(t *testing.T) {
	if got := vectorPrefix("abc"); got != "abc#" {
		t.Errorf("vectorPrefix() = %q", got)
	}
}
