package docindex

import "context"

// Document is one ingested source file.
type Document struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Title string `json:"title"`
}

// Chunk is an embedded slice of a document.
type Chunk struct {
	Position  int
	Content   string
	Embedding []float32
}

// SearchResult is a stored chunk ranked against a query vector.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// VectorStore answers nearest-neighbour queries over chunk embeddings.
type VectorStore interface {
	Nearest(ctx context.Context, vec []float32, k int) ([]SearchResult, error)
}

// ChunkWriter persists embedded chunks during ingestion. Writing a document
// replaces any chunks previously stored for the same document ID.
type ChunkWriter interface {
	HasDocument(ctx context.Context, id string) (bool, error)
	WriteDocument(ctx context.Context, doc Document, chunks []Chunk) error
}
