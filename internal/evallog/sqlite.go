package evallog

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/storage/sqlite"
	"github.com/google/uuid"
)

// SQLiteSink mirrors records into the evaluation_records table
type SQLiteSink struct {
	db *sqlite.DB
}

// NewSQLiteSink opens (creating if needed) and migrates the database at path
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Name() string {
	return "sqlite"
}

func (s *SQLiteSink) Append(ctx context.Context, rec domain.LogRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_records (id, lesson_id, provider, prompt, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.LessonID, rec.Provider, rec.Prompt, rec.Response, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lesson_id, provider, prompt, response, created_at
		FROM evaluation_records ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query evaluation records: %w", err)
	}
	defer rows.Close()

	var records []domain.LogRecord
	for rows.Next() {
		var (
			rec       domain.LogRecord
			id        string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &rec.LessonID, &rec.Provider, &rec.Prompt, &rec.Response, &createdAt); err != nil {
			return nil, fmt.Errorf("scan evaluation record: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("record id %q: %w", id, err)
		}
		rec.CreatedAt = createdAt
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of stored records
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluation_records").Scan(&n)
	return n, err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
