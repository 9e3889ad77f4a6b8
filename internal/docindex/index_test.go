package docindex

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/nahw/internal/storage/sqlite"
)

// openTestDB opens a migrated index database in a temp dir
func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testChunks(dim int, texts ...string) []Chunk {
	e := NewKeywordEmbedder(dim)
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		vec, _ := e.Embed(context.Background(), text)
		chunks[i] = Chunk{Position: i, Content: text, Embedding: vec}
	}
	return chunks
}

func TestIndex_WriteDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(openTestDB(t).DB)

	doc := Document{ID: "abc", Path: "nahw.txt", Title: "النحو"}
	if err := idx.WriteDocument(ctx, doc, testChunks(64, "المبتدأ مرفوع", "الخبر مرفوع")); err != nil {
		t.Fatalf("WriteDocument() error = %v", err)
	}

	ok, err := idx.HasDocument(ctx, "abc")
	if err != nil || !ok {
		t.Errorf("HasDocument() = %v, %v; want true", ok, err)
	}
	if ok, _ := idx.HasDocument(ctx, "missing"); ok {
		t.Error("HasDocument(missing) = true")
	}

	rows, err := idx.ListChunks(ctx)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListChunks() = %d rows; want 2", len(rows))
	}
	if rows[0].Content != "المبتدأ مرفوع" || rows[0].Position != 0 || rows[0].DocumentID != "abc" {
		t.Errorf("rows[0] = %+v", rows[0])
	}

	dim, err := idx.Dimension(ctx)
	if err != nil || dim != 64 {
		t.Errorf("Dimension() = %d, %v; want 64", dim, err)
	}
}

func TestIndex_WriteDocument_ReplacesChunks(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(openTestDB(t).DB)
	doc := Document{ID: "abc", Path: "a.txt"}

	if err := idx.WriteDocument(ctx, doc, testChunks(32, "one", "two", "three")); err != nil {
		t.Fatal(err)
	}
	if err := idx.WriteDocument(ctx, doc, testChunks(32, "only")); err != nil {
		t.Fatal(err)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 || stats.Dimension != 32 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestIndex_WriteDocument_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(openTestDB(t).DB)

	if err := idx.WriteDocument(ctx, Document{ID: "a", Path: "a"}, testChunks(32, "x")); err != nil {
		t.Fatal(err)
	}
	err := idx.WriteDocument(ctx, Document{ID: "b", Path: "b"}, testChunks(64, "y"))
	if err == nil || !strings.Contains(err.Error(), "dimension") {
		t.Fatalf("WriteDocument() error = %v; want dimension mismatch", err)
	}

	if ok, _ := idx.HasDocument(ctx, "b"); ok {
		t.Error("failed write should roll back the document row")
	}
}

func TestIndex_WriteDocument_NoChunks(t *testing.T) {
	idx := NewIndex(openTestDB(t).DB)
	if err := idx.WriteDocument(context.Background(), Document{ID: "a", Path: "a"}, nil); err == nil {
		t.Error("expected error for a document without chunks")
	}
}

func TestIndex_EmptyDimension(t *testing.T) {
	idx := NewIndex(openTestDB(t).DB)
	dim, err := idx.Dimension(context.Background())
	if err != nil || dim != 0 {
		t.Errorf("Dimension() = %d, %v; want 0", dim, err)
	}
}

func TestIndex_ListDocuments(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(openTestDB(t).DB)

	_ = idx.WriteDocument(ctx, Document{ID: "a", Path: "a.txt", Title: "A"}, testChunks(16, "x", "y"))
	_ = idx.WriteDocument(ctx, Document{ID: "b", Path: "b.txt", Title: "B"}, testChunks(16, "z"))

	docs, err := idx.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("ListDocuments() = %d; want 2", len(docs))
	}
	counts := map[string]int{}
	for _, d := range docs {
		counts[d.ID] = d.ChunkCount
	}
	if counts["a"] != 2 || counts["b"] != 1 {
		t.Errorf("chunk counts = %v", counts)
	}
}
