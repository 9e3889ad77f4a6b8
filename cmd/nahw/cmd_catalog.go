package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/nahw/internal/bootstrap"
	"github.com/felixgeelhaar/nahw/internal/config"
	"github.com/felixgeelhaar/nahw/internal/docindex"
	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evallog"
	"github.com/felixgeelhaar/nahw/internal/lesson"
	"github.com/felixgeelhaar/nahw/internal/storage/sqlite"
)

// cmdLessons lists the catalog or prints one lesson
func cmdLessons(args []string) error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := lesson.NewRegistry(lesson.NewLoader(cfg.Lessons.Path))
	if err := registry.Load(); err != nil {
		return fmt.Errorf("load lessons: %w", err)
	}

	if len(args) > 0 {
		l, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		printLesson(os.Stdout, l)
		return nil
	}

	source := cfg.Lessons.Path
	if source == "" {
		source = "built-in catalog"
	}
	fmt.Printf("Lessons (%s)\n", source)
	for _, s := range registry.Summaries() {
		fmt.Printf("  %-12s %s (%d key points)\n", s.ID, s.Title, s.KeyPointCount)
	}
	return nil
}

func printLesson(w io.Writer, l *domain.Lesson) {
	fmt.Fprintf(w, "%s: %s\n\n", l.ID, l.Title)
	fmt.Fprintln(w, strings.TrimSpace(l.Content))
	fmt.Fprintln(w, "\nKey points")
	for _, kp := range l.KeyPoints {
		fmt.Fprintf(w, "  - %s\n", kp)
	}
}

// cmdLog prints the evaluation dataset rows
func cmdLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	limit := fs.Int("n", 0, "show only the last n rows")
	asJSON := fs.Bool("json", false, "print rows as JSON lines")
	path := fs.String("file", "", "dataset path (default from config)")
	fromSQLite := fs.Bool("sqlite", false, "read the SQLite mirror instead of the CSV dataset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" {
		cfg, err := config.LoadLocalConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		*path = cfg.Log.CSVPath
		if *fromSQLite {
			*path = cfg.Log.SQLitePath
			if *path == "" {
				return fmt.Errorf("log.sqlite_path is not set in config")
			}
		}
	}

	if *fromSQLite {
		records, err := readSQLiteLog(*path, *limit)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("No evaluation records at %s yet. Run an evaluation first.\n", *path)
			return nil
		}
		if err != nil {
			return err
		}
		return printRecords(os.Stdout, *path, records, *asJSON)
	}

	rows, err := evallog.ReadCSV(*path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Printf("No dataset at %s yet. Run an evaluation first.\n", *path)
		return nil
	}
	if err != nil {
		return err
	}
	if *limit > 0 && *limit < len(rows) {
		rows = rows[len(rows)-*limit:]
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Printf("%s: %d rows\n", *path, len(rows))
	for i, r := range rows {
		fmt.Printf("\n#%d\n", i+1)
		fmt.Printf("  prompt:   %s\n", preview(r.Prompt, 120))
		fmt.Printf("  response: %s\n", preview(r.Response, 200))
	}
	return nil
}

// readSQLiteLog returns the last limit records of the SQLite mirror, oldest
// first. A missing database is reported as os.ErrNotExist rather than
// created.
func readSQLiteLog(path string, limit int) ([]domain.LogRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	sink, err := evallog.NewSQLiteSink(path)
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	if limit <= 0 {
		limit = 1000
	}
	records, err := sink.Recent(context.Background(), limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

func printRecords(w io.Writer, path string, records []domain.LogRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(w, "%s: %d records\n", path, len(records))
	for _, r := range records {
		fmt.Fprintf(w, "\n%s  %s  %s  %s\n", r.CreatedAt.Format(time.RFC3339), r.LessonID, r.Provider, r.ID)
		fmt.Fprintf(w, "  prompt:   %s\n", preview(r.Prompt, 120))
		fmt.Fprintf(w, "  response: %s\n", preview(r.Response, 200))
	}
	return nil
}

// preview collapses whitespace and cuts text to n runes
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}

// cmdIngest chunks, embeds and indexes textbook files and directories
func cmdIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: nahw ingest <file|dir>...")
	}

	files, err := docindex.NewDiscoverer().Discover(fs.Args()...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no textbook files (%s) found", strings.Join(docindex.TextbookExtensions, ", "))
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	ingester, err := bootstrap.NewIngester(cfg, cliLogger(*verbose))
	if err != nil {
		return err
	}

	result, ingestErr := ingester.Ingest(ctx, files...)
	if err := ingester.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	fmt.Printf("Documents: %d found, %d indexed, %d unchanged, %d failed\n",
		result.DocumentsFound, result.DocumentsIndexed, result.DocumentsSkipped, result.Errors)
	fmt.Printf("Chunks:    %d embedded\n", result.ChunksEmbedded)
	return ingestErr
}

// cmdIndex shows what the SQLite index holds
func cmdIndex() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Retrieval.Backend == config.BackendPinecone {
		fmt.Printf("Retrieval uses Pinecone index %q (namespace %s)\n",
			cfg.Retrieval.Pinecone.Index, cfg.Retrieval.Pinecone.Namespace)
		return nil
	}

	path, err := cfg.IndexFile()
	if err != nil {
		return err
	}
	db, err := sqlite.OpenReadOnly(path)
	if errors.Is(err, sqlite.ErrNotExist) {
		fmt.Printf("No index at %s (run 'nahw ingest <file>')\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	idx := docindex.NewIndex(db.DB)
	stats, err := idx.Stats(ctx)
	if err != nil {
		return err
	}
	docs, err := idx.ListDocuments(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Index:     %s\n", path)
	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Chunks:    %d (dimension %d)\n", stats.Chunks, stats.Dimension)
	for _, d := range docs {
		fmt.Printf("  %-40s %4d chunks  %s\n", d.Title, d.ChunkCount, d.Path)
	}
	return nil
}
