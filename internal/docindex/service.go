package docindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const embedBatchSize = 64

// Service runs the ingestion pipeline: read → chunk → embed → store
type Service struct {
	writer   ChunkWriter
	embedder Embedder
	chunker  Chunker
	parser   *Parser
	logger   *slog.Logger
}

// NewService creates an ingestion service writing to the given store
func NewService(writer ChunkWriter, embedder Embedder, chunker Chunker, logger *slog.Logger) *Service {
	if embedder == nil {
		embedder = NewKeywordEmbedder(DefaultKeywordDimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{writer: writer, embedder: embedder, chunker: chunker, parser: NewParser(), logger: logger}
}

// IngestResult holds the outcome of an ingestion run
type IngestResult struct {
	DocumentsFound   int `json:"documents_found"`
	DocumentsIndexed int `json:"documents_indexed"`
	DocumentsSkipped int `json:"documents_skipped"`
	ChunksEmbedded   int `json:"chunks_embedded"`
	Errors           int `json:"errors"`
}

// Ingest indexes each file. Files whose content is already stored are
// skipped. Per-file failures are counted, logged and returned joined;
// the remaining files are still processed.
func (s *Service) Ingest(ctx context.Context, paths ...string) (*IngestResult, error) {
	result := &IngestResult{DocumentsFound: len(paths)}
	var errs []error

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Error("failed to read document", "path", path, "error", err)
			result.Errors++
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}

		indexed, chunks, err := s.ingest(ctx, path, string(data))
		if err != nil {
			s.logger.Error("failed to ingest document", "path", path, "error", err)
			result.Errors++
			errs = append(errs, fmt.Errorf("ingest %s: %w", path, err))
			continue
		}
		if !indexed {
			result.DocumentsSkipped++
			continue
		}
		result.DocumentsIndexed++
		result.ChunksEmbedded += chunks
	}

	return result, errors.Join(errs...)
}

// IngestText indexes text under a display name. It reports whether the text
// was new and how many chunks were stored.
func (s *Service) IngestText(ctx context.Context, name, text string) (bool, int, error) {
	return s.ingest(ctx, name, text)
}

func (s *Service) ingest(ctx context.Context, path, text string) (bool, int, error) {
	if !utf8.ValidString(text) {
		return false, 0, errors.New("content is not valid UTF-8")
	}

	sum := sha256.Sum256([]byte(text))
	doc := Document{
		ID:    hex.EncodeToString(sum[:]),
		Path:  path,
		Title: titleOf(path, text),
	}

	exists, err := s.writer.HasDocument(ctx, doc.ID)
	if err != nil {
		return false, 0, err
	}
	if exists {
		s.logger.Debug("document unchanged, skipping", "path", path)
		return false, 0, nil
	}

	parts := s.split(path, text)
	if len(parts) == 0 {
		return false, 0, errors.New("document is empty")
	}

	chunks := make([]Chunk, 0, len(parts))
	for start := 0; start < len(parts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(parts))
		vecs, err := s.embedder.EmbedBatch(ctx, parts[start:end])
		if err != nil {
			return false, 0, fmt.Errorf("embed batch: %w", err)
		}
		for i, vec := range vecs {
			chunks = append(chunks, Chunk{Position: start + i, Content: parts[start+i], Embedding: vec})
		}
	}

	if err := s.writer.WriteDocument(ctx, doc, chunks); err != nil {
		return false, 0, err
	}

	s.logger.Info("document ingested", "path", path, "chunks", len(chunks))
	return true, len(chunks), nil
}

// split chunks markdown per section and other text as a whole
func (s *Service) split(path, text string) []string {
	if isMarkdown(path) {
		return splitMarkdown(s.parser, s.chunker, text)
	}
	return s.chunker.Split(text)
}

// titleOf uses the first non-blank line, shortened, or the file name.
func titleOf(path, text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		if runes := []rune(line); len(runes) > 80 {
			line = string(runes[:80])
		}
		return line
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
