package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteSchemaSQL = `CREATE TABLE IF NOT EXISTS kv_blobs (
        key        TEXT PRIMARY KEY,
        value      BLOB NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );`

	sqliteGetSQL = `SELECT value FROM kv_blobs WHERE key = ?;`

	sqliteSetSQL = `INSERT INTO kv_blobs (key, value, updated_at)
    VALUES (?, ?, ?)
    ON CONFLICT (key) DO UPDATE
    SET value      = excluded.value,
        updated_at = excluded.updated_at;`
)

// SQLite stores blobs in a single-table SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens or creates the database file at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Get returns the blob stored under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, sqliteGetSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set replaces the blob stored under key.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if _, err := s.db.ExecContext(ctx, sqliteSetSQL, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TryLock takes an exclusive flock on a sidecar file next to the database.
// The kernel drops it if the process dies.
func (s *SQLite) TryLock(context.Context) (func(), error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return lockFile(s.path + ".lock")
}

var (
	_ Store  = (*SQLite)(nil)
	_ Locker = (*SQLite)(nil)
)
