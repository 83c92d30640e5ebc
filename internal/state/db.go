// Package state provides SQLite-backed persistence for the orchestration
// engine: spec tasks, implementation tasks, work sessions, coordination
// events, the activity log, and agent heartbeats. It handles both global
// state (~/.local/share/specflow/specflow.db) and project-local state
// (.specflow/state.db).
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with engine-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// GlobalDBPath returns the path to the global specflow database.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "specflow", "specflow.db")
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".specflow", "state.db")
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenProject opens the project-local database.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1SpecTasks},
		{2, migrationV2WorkSessions},
		{3, migrationV3ImplementationTasks},
		{4, migrationV4CoordinationEvents},
		{5, migrationV5ActivityLog},
		{6, migrationV6Heartbeats},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1SpecTasks = `
CREATE TABLE IF NOT EXISTS spec_tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	name TEXT NOT NULL,
	description TEXT,
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'spec_generation',
	phase TEXT NOT NULL DEFAULT 'planning',
	original_prompt TEXT NOT NULL,
	requirements_spec TEXT,
	technical_design TEXT,
	implementation_plan TEXT,
	external_agent_id TEXT,
	planning_session_id TEXT,
	implementation_session_id TEXT,
	spec_approved_by TEXT,
	spec_approved_at DATETIME,
	impl_approved_by TEXT,
	impl_approved_at DATETIME,
	spec_revision_count INTEGER NOT NULL DEFAULT 0,
	requested_changes TEXT,
	branch_name TEXT,
	last_commit_hash TEXT,
	pull_request_url TEXT,
	pushed INTEGER NOT NULL DEFAULT 0,
	merged INTEGER NOT NULL DEFAULT 0,
	handoff_state TEXT,
	yolo_mode INTEGER NOT NULL DEFAULT 0,
	project_path TEXT,
	workspace_config TEXT,
	archived INTEGER NOT NULL DEFAULT 0,
	created_by TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_spec_tasks_status ON spec_tasks(status);
CREATE INDEX IF NOT EXISTS idx_spec_tasks_project_id ON spec_tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_spec_tasks_archived ON spec_tasks(archived);
`

const migrationV2WorkSessions = `
CREATE TABLE IF NOT EXISTS work_sessions (
	id TEXT PRIMARY KEY,
	spec_task_id TEXT NOT NULL REFERENCES spec_tasks(id),
	agent_session_id TEXT NOT NULL,
	agent_thread_id TEXT,
	name TEXT,
	description TEXT,
	phase TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	implementation_task_id TEXT,
	implementation_task_index INTEGER,
	implementation_task_title TEXT,
	parent_work_session_id TEXT,
	spawned_by_session_id TEXT,
	agent_config TEXT,
	environment_config TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_work_sessions_spec_task_id ON work_sessions(spec_task_id);
CREATE INDEX IF NOT EXISTS idx_work_sessions_status ON work_sessions(status);
CREATE INDEX IF NOT EXISTS idx_work_sessions_parent ON work_sessions(parent_work_session_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_work_sessions_agent_session ON work_sessions(agent_session_id) WHERE agent_session_id <> '';
`

const migrationV3ImplementationTasks = `
CREATE TABLE IF NOT EXISTS implementation_tasks (
	id TEXT PRIMARY KEY,
	spec_task_id TEXT NOT NULL REFERENCES spec_tasks(id),
	task_index INTEGER NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	acceptance_criteria TEXT,
	estimated_effort TEXT NOT NULL DEFAULT 'medium',
	dependencies TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	assigned_work_session_id TEXT,
	created_at DATETIME NOT NULL,
	completed_at DATETIME,
	UNIQUE(spec_task_id, task_index)
);

CREATE INDEX IF NOT EXISTS idx_impl_tasks_spec_task_id ON implementation_tasks(spec_task_id);
CREATE INDEX IF NOT EXISTS idx_impl_tasks_status ON implementation_tasks(status);
`

const migrationV4CoordinationEvents = `
CREATE TABLE IF NOT EXISTS coordination_events (
	id TEXT PRIMARY KEY,
	spec_task_id TEXT NOT NULL REFERENCES spec_tasks(id),
	from_session_id TEXT NOT NULL,
	to_session_id TEXT,
	event_type TEXT NOT NULL,
	message TEXT,
	payload TEXT,
	timestamp DATETIME NOT NULL,
	acknowledged INTEGER NOT NULL DEFAULT 0,
	acknowledged_at DATETIME,
	response TEXT
);

CREATE INDEX IF NOT EXISTS idx_coord_events_spec_task_id ON coordination_events(spec_task_id);
CREATE INDEX IF NOT EXISTS idx_coord_events_from ON coordination_events(from_session_id);
CREATE INDEX IF NOT EXISTS idx_coord_events_type ON coordination_events(event_type);
`

const migrationV5ActivityLog = `
CREATE TABLE IF NOT EXISTS activity_log (
	id TEXT PRIMARY KEY,
	spec_task_id TEXT NOT NULL,
	work_session_id TEXT,
	activity_type TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata TEXT,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_spec_task_id ON activity_log(spec_task_id);
`

const migrationV6Heartbeats = `
CREATE TABLE IF NOT EXISTS agent_heartbeats (
	agent_id TEXT PRIMARY KEY,
	spec_task_id TEXT,
	last_beat DATETIME,
	session_created_at DATETIME NOT NULL
);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// formatNullableTime formats an optional time for SQLite storage.
func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
