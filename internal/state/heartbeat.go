package state

import (
	"database/sql"
	"fmt"
	"time"
)

// HeartbeatRecord stores the raw timestamps liveness is derived from. The
// derived view (idle minutes, thresholds) is computed by the liveness
// monitor, never persisted.
type HeartbeatRecord struct {
	AgentID          string
	SpecTaskID       string
	LastBeat         *time.Time
	SessionCreatedAt time.Time
}

// RegisterAgent records the creation time for an external agent so an agent
// that never heartbeats is judged idle from session creation, not treated as
// an error.
func (db *DB) RegisterAgent(agentID, specTaskID string, createdAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO agent_heartbeats (agent_id, spec_task_id, last_beat, session_created_at)
		VALUES (?, ?, NULL, ?)
		ON CONFLICT(agent_id) DO NOTHING
	`, agentID, specTaskID, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

// RecordHeartbeat updates the last-beat time for an agent, registering it on
// first contact.
func (db *DB) RecordHeartbeat(agentID string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO agent_heartbeats (agent_id, spec_task_id, last_beat, session_created_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET last_beat = excluded.last_beat
	`, agentID, formatTime(at), formatTime(at))
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// GetHeartbeat retrieves the stored timestamps for an agent. Returns nil if
// the agent was never registered.
func (db *DB) GetHeartbeat(agentID string) (*HeartbeatRecord, error) {
	row := db.QueryRow(`
		SELECT agent_id, spec_task_id, last_beat, session_created_at
		FROM agent_heartbeats WHERE agent_id = ?
	`, agentID)

	var r HeartbeatRecord
	var specTaskID, lastBeat sql.NullString
	var createdAt string
	err := row.Scan(&r.AgentID, &specTaskID, &lastBeat, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get heartbeat: %w", err)
	}
	r.SpecTaskID = specTaskID.String
	r.LastBeat = parseNullableTime(lastBeat)
	r.SessionCreatedAt, _ = parseTime(createdAt)
	return &r, nil
}

// ListHeartbeats returns every registered agent's timestamps.
func (db *DB) ListHeartbeats() ([]*HeartbeatRecord, error) {
	rows, err := db.Query(`
		SELECT agent_id, spec_task_id, last_beat, session_created_at
		FROM agent_heartbeats ORDER BY agent_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}
	defer rows.Close()

	var records []*HeartbeatRecord
	for rows.Next() {
		var r HeartbeatRecord
		var specTaskID, lastBeat sql.NullString
		var createdAt string
		if err := rows.Scan(&r.AgentID, &specTaskID, &lastBeat, &createdAt); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		r.SpecTaskID = specTaskID.String
		r.LastBeat = parseNullableTime(lastBeat)
		r.SessionCreatedAt, _ = parseTime(createdAt)
		records = append(records, &r)
	}
	return records, rows.Err()
}
