package evallog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// DefaultPostgresTable receives records when no table is configured.
const DefaultPostgresTable = "evaluation_records"

// PostgresSink mirrors records into a Postgres table with the response
// stored as JSONB
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSink connects to url and creates the table if it is missing
func NewPostgresSink(ctx context.Context, url, table string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresSinkFromPool(pool, table)
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSinkFromPool wraps an existing pool
func NewPostgresSinkFromPool(pool *pgxpool.Pool, table string) *PostgresSink {
	if table == "" {
		table = DefaultPostgresTable
	}
	return &PostgresSink{pool: pool, table: table}
}

// EnsureTable creates the records table if it does not exist
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createTableSQL(s.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         UUID PRIMARY KEY,
		lesson_id  TEXT NOT NULL DEFAULT '',
		provider   TEXT NOT NULL DEFAULT '',
		prompt     TEXT NOT NULL,
		response   JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`, pq.QuoteIdentifier(table))
}

func insertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, lesson_id, provider, prompt, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, pq.QuoteIdentifier(table))
}

func (s *PostgresSink) Name() string {
	return "postgres"
}

func (s *PostgresSink) Append(ctx context.Context, rec domain.LogRecord) error {
	_, err := s.pool.Exec(ctx, insertSQL(s.table),
		rec.ID, rec.LessonID, rec.Provider, rec.Prompt, responseJSON(rec.Response), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation record: %w", err)
	}
	return nil
}

// responseJSON stores the serialized result as JSONB, or NULL when it is
// not valid JSON
func responseJSON(response string) pqtype.NullRawMessage {
	if !json.Valid([]byte(response)) {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: json.RawMessage(response), Valid: true}
}

// Count returns the number of stored records
func (s *PostgresSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(s.table))).Scan(&n)
	return n, err
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
