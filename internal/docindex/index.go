package docindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const metaDimension = "dimension"

// Index is the SQLite chunk store written by ingestion. The schema comes
// from the storage migrations.
type Index struct {
	db *sql.DB
}

// NewIndex creates an index backed by the given database
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// HasDocument reports whether a document with this content hash is stored
func (idx *Index) HasDocument(ctx context.Context, id string) (bool, error) {
	var count int
	err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return count > 0, nil
}

// WriteDocument stores a document and replaces its chunks in one transaction.
// The first write fixes the index dimension; later writes must match it.
func (idx *Index) WriteDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no chunks", doc.Path)
	}
	dim := len(chunks[0].Embedding)

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := ensureDimension(ctx, tx, dim); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, path, title, chunk_count, ingested_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path, title=excluded.title,
			chunk_count=excluded.chunk_count, ingested_at=excluded.ingested_at`,
		doc.ID, doc.Path, doc.Title, len(chunks),
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, position, content, embedding)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %d of %s: embedding dimension %d, want %d", c.Position, doc.Path, len(c.Embedding), dim)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, c.Position, c.Content, EncodeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	return tx.Commit()
}

func ensureDimension(ctx context.Context, tx *sql.Tx, dim int) error {
	var stored string
	err := tx.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaDimension).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, "INSERT INTO index_meta (key, value) VALUES (?, ?)", metaDimension, strconv.Itoa(dim))
		if err != nil {
			return fmt.Errorf("record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read dimension: %w", err)
	}

	if stored != strconv.Itoa(dim) {
		return fmt.Errorf("index dimension is %s, embedder produces %d", stored, dim)
	}
	return nil
}

// Dimension returns the embedding dimension recorded by the first write,
// or 0 for an index nothing has been written to.
func (idx *Index) Dimension(ctx context.Context) (int, error) {
	var stored string
	err := idx.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaDimension).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dimension: %w", err)
	}
	dim, err := strconv.Atoi(stored)
	if err != nil {
		return 0, fmt.Errorf("invalid dimension %q: %w", stored, err)
	}
	return dim, nil
}

// ChunkRow is a stored chunk with its raw embedding blob
type ChunkRow struct {
	ID         int64
	DocumentID string
	Position   int
	Content    string
	Embedding  []byte
}

// ListChunks returns every stored chunk in insertion order
func (idx *Index) ListChunks(ctx context.Context) ([]ChunkRow, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Content, &c.Embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListDocuments returns stored documents, newest first
func (idx *Index) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, path, title, chunk_count FROM documents
		ORDER BY ingested_at DESC, path`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentSummary
	for rows.Next() {
		var d DocumentSummary
		if err := rows.Scan(&d.ID, &d.Path, &d.Title, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DocumentSummary is a lightweight document listing entry
type DocumentSummary struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
}

// IndexStats summarizes the index contents
type IndexStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Dimension int `json:"dimension"`
}

// Stats returns statistics about the index
func (idx *Index) Stats(ctx context.Context) (*IndexStats, error) {
	var stats IndexStats
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	dim, err := idx.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	stats.Dimension = dim
	return &stats, nil
}
