package state

import (
	"database/sql"
	"fmt"

	"github.com/specdriven/specflow/pkg/models"
)

const workSessionColumns = `id, spec_task_id, agent_session_id, agent_thread_id, name, description,
	phase, status, implementation_task_id, implementation_task_index, implementation_task_title,
	parent_work_session_id, spawned_by_session_id, agent_config, environment_config,
	created_at, updated_at, started_at, completed_at`

// CreateWorkSession inserts a new work session.
func (db *DB) CreateWorkSession(s *models.WorkSession) error {
	_, err := db.Exec(`
		INSERT INTO work_sessions (`+workSessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.SpecTaskID, s.AgentSessionID, s.AgentThreadID, s.Name, s.Description,
		string(s.Phase), string(s.Status), s.ImplementationTaskID, s.ImplementationTaskIndex, s.ImplementationTaskTitle,
		s.ParentWorkSessionID, s.SpawnedBySessionID, string(s.AgentConfig), string(s.EnvironmentConfig),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt), formatNullableTime(s.StartedAt), formatNullableTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create work session: %w", err)
	}
	return nil
}

// GetWorkSession retrieves a work session by ID.
func (db *DB) GetWorkSession(id string) (*models.WorkSession, error) {
	row := db.QueryRow(`SELECT `+workSessionColumns+` FROM work_sessions WHERE id = ?`, id)
	s, err := scanWorkSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("work session %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get work session: %w", err)
	}
	return s, nil
}

// UpdateWorkSession persists the full work session row.
func (db *DB) UpdateWorkSession(s *models.WorkSession) error {
	res, err := db.Exec(`
		UPDATE work_sessions SET
			agent_session_id = ?, agent_thread_id = ?, name = ?, description = ?,
			phase = ?, status = ?,
			implementation_task_id = ?, implementation_task_index = ?, implementation_task_title = ?,
			parent_work_session_id = ?, spawned_by_session_id = ?,
			agent_config = ?, environment_config = ?,
			updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		s.AgentSessionID, s.AgentThreadID, s.Name, s.Description,
		string(s.Phase), string(s.Status),
		s.ImplementationTaskID, s.ImplementationTaskIndex, s.ImplementationTaskTitle,
		s.ParentWorkSessionID, s.SpawnedBySessionID,
		string(s.AgentConfig), string(s.EnvironmentConfig),
		formatTime(s.UpdatedAt), formatNullableTime(s.StartedAt), formatNullableTime(s.CompletedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update work session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("work session %s: %w", s.ID, models.ErrNotFound)
	}
	return nil
}

// CompareAndSwapWorkSessionStatus transitions a session's status only if the
// stored status still equals expected. It returns false when another writer
// got there first, which callers treat as a lost race to re-validate.
func (db *DB) CompareAndSwapWorkSessionStatus(id string, expected, next models.WorkSessionStatus, updatedAt string) (bool, error) {
	res, err := db.Exec(`
		UPDATE work_sessions SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(next), updatedAt, id, string(expected))
	if err != nil {
		return false, fmt.Errorf("cas work session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListWorkSessions lists all sessions for a spec task, oldest first.
func (db *DB) ListWorkSessions(specTaskID string) ([]*models.WorkSession, error) {
	rows, err := db.Query(`
		SELECT `+workSessionColumns+` FROM work_sessions
		WHERE spec_task_id = ? ORDER BY created_at ASC, id ASC
	`, specTaskID)
	if err != nil {
		return nil, fmt.Errorf("list work sessions: %w", err)
	}
	defer rows.Close()
	return collectWorkSessions(rows)
}

// ListChildWorkSessions lists the direct children of a session.
func (db *DB) ListChildWorkSessions(parentID string) ([]*models.WorkSession, error) {
	rows, err := db.Query(`
		SELECT `+workSessionColumns+` FROM work_sessions
		WHERE parent_work_session_id = ? ORDER BY created_at ASC, id ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list child work sessions: %w", err)
	}
	defer rows.Close()
	return collectWorkSessions(rows)
}

func collectWorkSessions(rows *sql.Rows) ([]*models.WorkSession, error) {
	var sessions []*models.WorkSession
	for rows.Next() {
		s, err := scanWorkSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan work session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanWorkSession(scan func(...any) error) (*models.WorkSession, error) {
	var s models.WorkSession
	var phase, status string
	var agentThreadID, name, description, implTaskID, implTaskTitle sql.NullString
	var parentID, spawnedBy, agentConfig, envConfig sql.NullString
	var implTaskIndex sql.NullInt64
	var createdAt, updatedAt string
	var startedAt, completedAt sql.NullString

	err := scan(
		&s.ID, &s.SpecTaskID, &s.AgentSessionID, &agentThreadID, &name, &description,
		&phase, &status, &implTaskID, &implTaskIndex, &implTaskTitle,
		&parentID, &spawnedBy, &agentConfig, &envConfig,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.AgentThreadID = agentThreadID.String
	s.Name = name.String
	s.Description = description.String
	s.Phase = models.Phase(phase)
	s.Status = models.WorkSessionStatus(status)
	s.ImplementationTaskID = implTaskID.String
	s.ImplementationTaskIndex = int(implTaskIndex.Int64)
	s.ImplementationTaskTitle = implTaskTitle.String
	s.ParentWorkSessionID = parentID.String
	s.SpawnedBySessionID = spawnedBy.String
	if agentConfig.Valid && agentConfig.String != "" {
		s.AgentConfig = []byte(agentConfig.String)
	}
	if envConfig.Valid && envConfig.String != "" {
		s.EnvironmentConfig = []byte(envConfig.String)
	}
	s.CreatedAt, _ = parseTime(createdAt)
	s.UpdatedAt, _ = parseTime(updatedAt)
	s.StartedAt = parseNullableTime(startedAt)
	s.CompletedAt = parseNullableTime(completedAt)
	return &s, nil
}
