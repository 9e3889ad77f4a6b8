package docindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/storage/sqlite"
)

// FileIndex serves nearest-neighbour queries from an index file built by
// ingestion. The file is opened read-only on first use and its vectors are
// held in memory for the life of the process. A failed load is not cached,
// so a file that appears later is picked up by the next query.
type FileIndex struct {
	path      string
	dimension int
	logger    *slog.Logger

	mu     sync.Mutex
	loaded []storedVector
}

type storedVector struct {
	id         string
	documentID string
	content    string
	vec        []float32
}

// NewFileIndex creates a lazy reader for the index at path. dimension is the
// configured embedder's output size and must match the index.
func NewFileIndex(path string, dimension int, logger *slog.Logger) *FileIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileIndex{path: path, dimension: dimension, logger: logger}
}

// Path returns the index file location
func (f *FileIndex) Path() string {
	return f.path
}

// Nearest returns the k stored chunks most similar to vec
func (f *FileIndex) Nearest(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	vectors, err := f.vectors(ctx)
	if err != nil {
		return nil, err
	}
	if len(vec) != f.dimension {
		return nil, f.unavailable(fmt.Errorf("query vector has dimension %d, index has %d", len(vec), f.dimension))
	}

	results := make([]SearchResult, len(vectors))
	for i, v := range vectors {
		results[i] = SearchResult{
			ChunkID:    v.id,
			DocumentID: v.documentID,
			Content:    v.content,
			Score:      CosineSimilarity(vec, v.vec),
		}
	}

	// Stable so equal scores keep insertion order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Warm loads the index eagerly so startup can report a broken file.
func (f *FileIndex) Warm(ctx context.Context) error {
	_, err := f.vectors(ctx)
	return err
}

func (f *FileIndex) vectors(ctx context.Context) ([]storedVector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loaded != nil {
		return f.loaded, nil
	}

	loaded, err := f.load(ctx)
	if err != nil {
		return nil, f.unavailable(err)
	}
	f.loaded = loaded
	f.logger.Info("vector index loaded", "path", f.path, "chunks", len(loaded), "dimension", f.dimension)
	return loaded, nil
}

func (f *FileIndex) load(ctx context.Context) ([]storedVector, error) {
	db, err := sqlite.OpenReadOnly(f.path)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotExist) {
			return nil, fmt.Errorf("index file not found (run `nahw ingest` first): %w", err)
		}
		return nil, err
	}
	defer db.Close()

	for _, table := range []string{"chunks", "index_meta"} {
		ok, err := db.HasTable(table)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("index schema missing table %q", table)
		}
	}

	idx := NewIndex(db.DB)
	dim, err := idx.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && dim != f.dimension {
		return nil, fmt.Errorf("index dimension is %d, embedder produces %d", dim, f.dimension)
	}

	rows, err := idx.ListChunks(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("index contains no chunks")
	}

	vectors := make([]storedVector, 0, len(rows))
	for _, row := range rows {
		vec, err := DecodeEmbedding(row.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", row.ID, err)
		}
		if len(vec) != f.dimension {
			return nil, fmt.Errorf("chunk %d has dimension %d, embedder produces %d", row.ID, len(vec), f.dimension)
		}
		vectors = append(vectors, storedVector{
			id:         strconv.FormatInt(row.ID, 10),
			documentID: row.DocumentID,
			content:    row.Content,
			vec:        vec,
		})
	}
	return vectors, nil
}

func (f *FileIndex) unavailable(err error) error {
	return &domain.RetrievalUnavailableError{Source: f.path, Err: err}
}
