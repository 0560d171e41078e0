// Package store is DevPulse's embedded relational database: a single
// SQLite file holding events, sessions, projects, dev logs, conflicts,
// webhooks, and settings (spec.md §4.1). All writes go through a single
// serialized connection; reads use a separate concurrent pool against the
// same WAL-mode file, grounded on the batalabs-muxd sqlite store pattern.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database for DevPulse's persisted entities.
type Store struct {
	writeDB *sql.DB // single connection: all mutations are serialized through it
	readDB  *sql.DB // pooled, concurrent reads against the same WAL file
	log     zerolog.Logger
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	dsn := path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	// Every connection to ":memory:" opens its own private database, so an
	// in-memory store reads through its single write connection instead.
	readDB := writeDB
	if path != ":memory:" {
		readDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			writeDB.Close()
			return nil, fmt.Errorf("open read db: %w", err)
		}
		readDB.SetMaxOpenConns(4)
	}

	if err := writeDB.Ping(); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{writeDB: writeDB, readDB: readDB, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an existing *sql.DB for both reads and writes and runs
// migrations. Used by tests against an in-memory database.
func NewFromDB(db *sql.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{writeDB: db, readDB: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes both underlying database connections.
func (s *Store) Close() error {
	werr := s.writeDB.Close()
	if s.readDB != s.writeDB {
		if err := s.readDB.Close(); err != nil && werr == nil {
			werr = err
		}
	}
	return werr
}

// FileSize reports the on-disk size of the database file in bytes, used by the
// Retention Manager to report db_size_before/db_size_after (spec.md §4.7).
func (s *Store) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Compact runs SQLite's VACUUM to reclaim space freed by retention deletes
// (spec.md §4.7 step 4).
func (s *Store) Compact(ctx context.Context) error {
	_, err := s.writeDB.ExecContext(ctx, "VACUUM")
	return err
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_app TEXT NOT NULL,
			session_id TEXT NOT NULL,
			hook_event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			model_name TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL,
			time_skew INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp, id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(source_app, session_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			source_app TEXT NOT NULL,
			session_id TEXT NOT NULL,
			project_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_branch TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			last_event_at INTEGER NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0,
			model_name TEXT NOT NULL DEFAULT '',
			cwd TEXT NOT NULL DEFAULT '',
			task_context TEXT NOT NULL DEFAULT '',
			compaction_count INTEGER NOT NULL DEFAULT 0,
			last_compaction_at INTEGER NOT NULL DEFAULT 0,
			compaction_history TEXT NOT NULL DEFAULT '[]',
			parent_id TEXT NOT NULL DEFAULT '',
			tool_use_count INTEGER NOT NULL DEFAULT 0,
			tool_failure_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (source_app, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_name, status)`,

		`CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			current_branch TEXT NOT NULL DEFAULT '',
			active_sessions INTEGER NOT NULL DEFAULT 0,
			last_activity INTEGER NOT NULL DEFAULT 0,
			test_status TEXT NOT NULL DEFAULT 'unknown',
			test_summary TEXT NOT NULL DEFAULT '',
			dev_servers TEXT NOT NULL DEFAULT '[]',
			deployment_status TEXT NOT NULL DEFAULT '{}',
			github_status TEXT NOT NULL DEFAULT '{}',
			health INTEGER NOT NULL DEFAULT 0,
			health_components TEXT NOT NULL DEFAULT '{}',
			health_trend INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS agent_nodes (
			agent_id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			project_name TEXT NOT NULL DEFAULT '',
			model_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			task_context TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_nodes_project ON agent_nodes(project_name)`,

		`CREATE TABLE IF NOT EXISTS devlogs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			source_app TEXT NOT NULL,
			project_name TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			duration_minutes REAL NOT NULL DEFAULT 0,
			event_count INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			files_changed TEXT NOT NULL DEFAULT '[]',
			commits TEXT NOT NULL DEFAULT '[]',
			tool_breakdown TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devlogs_project_ended ON devlogs(project_name, ended_at)`,

		`CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			severity TEXT NOT NULL,
			detected_at INTEGER NOT NULL,
			projects TEXT NOT NULL DEFAULT '[]',
			dismissed INTEGER NOT NULL DEFAULT 0,
			is_manifest INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_path ON conflicts(file_path)`,

		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			event_types TEXT NOT NULL DEFAULT '[]',
			project_filter TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			trigger_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_status INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			last_triggered_at INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.writeDB.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// WithTx runs fn inside a write transaction, committing on success and
// rolling back on error or panic. All multi-table derivations triggered by
// a single ingest happen inside one call to WithTx so readers never
// observe a partially applied event (spec.md §4.1).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
