// Package sqlite holds the SQLite connection helpers and the embedded
// migration runner shared by the chunk index and the evaluation record sink.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/felixgeelhaar/nahw/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotExist is returned by OpenReadOnly when the database file is missing.
var ErrNotExist = errors.New("database file does not exist")

// DB wraps a sql.DB connection to a SQLite database with migration support.
type DB struct {
	*sql.DB
	path string
}

// Open creates a read-write connection with WAL mode and foreign keys enabled.
// The file is created if it does not exist.
func Open(path string) (*DB, error) {
	return open(path, fileURI(path, "_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"))
}

// OpenReadOnly opens an existing database without write access. It never
// creates the file.
func OpenReadOnly(path string) (*DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return open(path, fileURI(path, "mode=ro&_busy_timeout=5000"))
}

// fileURI percent-encodes path so '?', '#' and '%' in file names are not
// read as URI syntax
func fileURI(path, params string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + params
}

func open(path, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)

	return &DB{DB: db, path: path}, nil
}

// Path returns the file the connection was opened on.
func (db *DB) Path() string {
	return db.path
}

// Seal switches the journal back to rollback mode and closes the connection,
// leaving a single self-contained file that read-only openers can use
// without creating WAL side files.
func (db *DB) Seal() error {
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		db.Close()
		return fmt.Errorf("reset journal mode: %w", err)
	}
	return db.Close()
}

// Migrate applies all pending SQL migrations from the embedded filesystem.
func (db *DB) Migrate() error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	currentVersion, err := db.Version()
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		version, err := parseVersion(name)
		if err != nil {
			slog.Warn("skipping non-migration file", "name", name, "error", err)
			continue
		}
		if version <= currentVersion {
			continue
		}

		if err := db.apply(name, version); err != nil {
			return err
		}
		applied++
		slog.Debug("applied migration", "name", name, "version", version, "db", db.path)
	}

	if applied > 0 {
		slog.Info("migrations complete", "applied", applied, "db", db.path)
	}
	return nil
}

func (db *DB) apply(name string, version int) error {
	data, err := fs.ReadFile(migrations.FS, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx for migration %s: %w", name, err)
	}

	if _, err := tx.Exec(string(data)); err != nil {
		tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// Version returns the current schema version, 0 for an unmigrated database.
func (db *DB) Version() (int, error) {
	var exists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// HasTable reports whether the named table exists.
func (db *DB) HasTable(name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	return n > 0, err
}

// parseVersion extracts the version number from a migration filename like "001_chunk_index.sql".
func parseVersion(name string) (int, error) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid migration filename: %s", name)
	}
	var version int
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return version, nil
}
