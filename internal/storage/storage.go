package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a record or alarm does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when adding a record whose id is already stored.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStorageUnavailable wraps any failure to open or initialize the database.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "create archived_tabs",
		SQL: `
CREATE TABLE archived_tabs (
    id           TEXT PRIMARY KEY,
    url          TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    favicon_url  TEXT NOT NULL DEFAULT '',
    domain       TEXT NOT NULL DEFAULT '',
    timestamp_ms INTEGER NOT NULL,
    idle_ms      INTEGER NOT NULL DEFAULT 0,
    tags         TEXT NOT NULL DEFAULT '[]',
    project      TEXT,
    screenshot   BLOB,
    archived     BOOLEAN NOT NULL DEFAULT 1
);
CREATE INDEX idx_archived_tabs_timestamp ON archived_tabs(timestamp_ms);
CREATE INDEX idx_archived_tabs_domain ON archived_tabs(domain);
CREATE INDEX idx_archived_tabs_project ON archived_tabs(project);
CREATE INDEX idx_archived_tabs_url ON archived_tabs(url);`,
	},
	{
		Version:     2,
		Description: "create alarms",
		SQL: `
CREATE TABLE alarms (
    name         TEXT PRIMARY KEY,
    next_fire_ms INTEGER NOT NULL,
    period_ms    INTEGER NOT NULL
);`,
	},
}

// Store is the archive record store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at path. Any failure is
// reported as ErrStorageUnavailable.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Enable WAL mode so the TUI can read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// pending migrations in order.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DataDir returns $XDG_DATA_HOME/tabecho, defaulting to ~/.local/share/tabecho.
func DataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tabecho"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabecho"), nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabecho/tabecho.db
func DefaultDBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tabecho.db"), nil
}

// Clear removes every archived record. Alarms are kept.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM archived_tabs"); err != nil {
		return fmt.Errorf("clear archive: %w", err)
	}
	return nil
}
