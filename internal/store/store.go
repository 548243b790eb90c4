package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for reconciler results: buffers,
// their outline symbols and diagnostics, cycle runs and metadata.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open is NewStore followed by Migrate.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS buffers (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL DEFAULT '',
  hash            TEXT NOT NULL DEFAULT '',
  version         INTEGER NOT NULL DEFAULT 0,
  last_reconciled TIMESTAMP
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  buffer_id       INTEGER NOT NULL REFERENCES buffers(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  modifiers       TEXT,
  signature_hash  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  buffer_id       INTEGER NOT NULL REFERENCES buffers(id),
  source          TEXT NOT NULL,
  severity        TEXT NOT NULL,
  line            INTEGER,
  col             INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  code            TEXT,
  message         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  buffer          TEXT NOT NULL,
  outcome         TEXT NOT NULL,
  strategies      INTEGER NOT NULL DEFAULT 0,
  started_at      TIMESTAMP NOT NULL,
  duration_ms     INTEGER NOT NULL DEFAULT 0,
  error           TEXT
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_symbols_buffer ON symbols(buffer_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_diagnostics_buffer ON diagnostics(buffer_id, source);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_buffer ON runs(buffer);
`
