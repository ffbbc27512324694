package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas configure every connection: WAL so `mstate trace` can read while
// a run is recording, a busy timeout for that overlap, and enforced
// run_id references.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migrations run in order on top of schema.sql; migrations[i] moves the
// database from user_version i to i+1.
var migrations = []string{
	// 1: kind-filtered trace reads (CountTraceKind, trace --kind)
	`CREATE INDEX IF NOT EXISTS idx_trace_events_kind ON trace_events(run_id, kind)`,
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = len(migrations)

// Store is the SQLite trace log: recorded runs, their name tables and
// their trace events.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace log at path and brings its schema up to
// date. ":memory:" opens a private in-memory log that lives until Close;
// the pool is capped at one connection so every statement sees it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close closes the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
