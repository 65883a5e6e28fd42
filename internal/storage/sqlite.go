package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS modification_log (
  id          TEXT PRIMARY KEY,
  path        TEXT NOT NULL,
  holder      TEXT NOT NULL,
  operation   TEXT NOT NULL,
  backup_path TEXT,
  success     INTEGER NOT NULL,
  error       TEXT,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS session_log (
  id           TEXT PRIMARY KEY,
  task         TEXT NOT NULL,
  target       TEXT NOT NULL,
  dry_run      INTEGER NOT NULL,
  files        INTEGER NOT NULL,
  failures     INTEGER NOT NULL,
  total_cost   REAL NOT NULL,
  report       JSON NOT NULL,
  started_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS modification_log_path_idx ON modification_log(path, created_at);`,
		`CREATE INDEX IF NOT EXISTS session_log_started_at_idx ON session_log(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
