package evallog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/nahw/internal/domain"
)

// DefaultCSVPath is the dataset file used when none is configured.
const DefaultCSVPath = "eval_dataset.csv"

// CSVHeader is written once when the dataset file is created.
var CSVHeader = []string{"prompt", "response"}

// CSVSink appends prompt/response rows to the evaluation dataset. Each
// append opens, writes and closes the file under a mutex so concurrent
// evaluations never interleave rows.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink prepares the dataset file, creating it with the header when it
// does not exist or is empty.
func NewCSVSink(path string) (*CSVSink, error) {
	if path == "" {
		path = DefaultCSVPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dataset dir: %w", err)
		}
	}

	s := &CSVSink{path: path}
	if err := s.ensureHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) ensureHeader() error {
	info, err := os.Stat(s.path)
	switch {
	case err == nil && info.Size() > 0:
		return nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat dataset: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	return f.Close()
}

func (s *CSVSink) Name() string {
	return "csv"
}

// Path returns the dataset file location
func (s *CSVSink) Path() string {
	return s.path
}

// Append writes one row. Fields are quoted as needed so embedded commas,
// quotes and newlines survive. A dataset removed or truncated since the
// last append is recreated with its header.
func (s *CSVSink) Append(ctx context.Context, rec domain.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat dataset: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(CSVHeader); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write([]string{rec.Prompt, rec.Response}); err != nil {
		f.Close()
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write row: %w", err)
	}
	return f.Close()
}

// Row is one decoded dataset row
type Row struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// ReadCSV decodes every row after the header
func ReadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(CSVHeader)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset %s is empty", path)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != CSVHeader[0] || header[1] != CSVHeader[1] {
		return nil, fmt.Errorf("unexpected dataset header %q", header)
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, Row{Prompt: rec[0], Response: rec[1]})
	}
}
