package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite build ledger: units, modules, diagnostics, assets and
// the declaration files written for them.
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
CREATE TABLE IF NOT EXISTS units (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT,
  third_party     INTEGER NOT NULL DEFAULT 0,
  global_document INTEGER NOT NULL DEFAULT 0,
  last_built      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  full_name       TEXT NOT NULL,
  kind            TEXT NOT NULL,
  used            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  severity        INTEGER NOT NULL,
  code            INTEGER NOT NULL,
  message         TEXT NOT NULL,
  line            INTEGER NOT NULL DEFAULT 0,
  col             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assets (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  category        TEXT NOT NULL,
  output          TEXT,
  builds          INTEGER NOT NULL DEFAULT 0,
  error           TEXT,
  last_built      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS outputs (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  written_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS declarations (
  id              INTEGER PRIMARY KEY,
  output_id       INTEGER NOT NULL REFERENCES outputs(id) ON DELETE CASCADE,
  full_name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_modules_unit ON modules(unit_id);
CREATE INDEX IF NOT EXISTS idx_modules_name ON modules(full_name);
CREATE INDEX IF NOT EXISTS idx_diagnostics_unit ON diagnostics(unit_id);
CREATE INDEX IF NOT EXISTS idx_declarations_output ON declarations(output_id);
CREATE INDEX IF NOT EXISTS idx_declarations_name ON declarations(full_name);
`

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// ResetOutputs forgets every recorded declaration file, forcing the next
// write of each to go through.
func (s *Store) ResetOutputs() error {
	if _, err := s.db.Exec(`DELETE FROM outputs`); err != nil {
		return fmt.Errorf("reset outputs: %w", err)
	}
	return nil
}
