package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/specdriven/specflow/pkg/models"
)

// EventFilters narrows ListCoordinationEvents results.
type EventFilters struct {
	Type models.CoordinationEventType
	// SessionID restricts to events sent by or addressed to the session
	// (broadcasts always match).
	SessionID string
	Limit     int
}

const eventColumns = `id, spec_task_id, from_session_id, to_session_id, event_type,
	message, payload, timestamp, acknowledged, acknowledged_at, response`

// AppendCoordinationEvent inserts an immutable coordination event.
func (db *DB) AppendCoordinationEvent(e *models.CoordinationEvent) error {
	payload, _ := json.Marshal(e.Payload)
	_, err := db.Exec(`
		INSERT INTO coordination_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.SpecTaskID, e.FromSessionID, e.ToSessionID, string(e.Type),
		e.Message, string(payload), formatTime(e.Timestamp),
		e.Acknowledged, formatNullableTime(e.AcknowledgedAt), e.Response,
	)
	if err != nil {
		return fmt.Errorf("append coordination event: %w", err)
	}
	return nil
}

// GetCoordinationEvent retrieves an event by ID.
func (db *DB) GetCoordinationEvent(id string) (*models.CoordinationEvent, error) {
	row := db.QueryRow(`SELECT `+eventColumns+` FROM coordination_events WHERE id = ?`, id)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("coordination event %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get coordination event: %w", err)
	}
	return e, nil
}

// AcknowledgeCoordinationEvent records the one permitted mutation of an
// event. The conditional update makes the second acknowledger lose without
// a cross-session lock.
func (db *DB) AcknowledgeCoordinationEvent(id, response string, at time.Time) error {
	res, err := db.Exec(`
		UPDATE coordination_events
		SET acknowledged = 1, acknowledged_at = ?, response = ?
		WHERE id = ? AND acknowledged = 0
	`, formatTime(at), response, id)
	if err != nil {
		return fmt.Errorf("acknowledge coordination event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := db.GetCoordinationEvent(id); err != nil {
		return err
	}
	return fmt.Errorf("event %s: %w", id, models.ErrAlreadyAcknowledged)
}

// ListCoordinationEvents returns a spec task's events ordered by timestamp
// ascending, with insertion order as the tiebreak.
func (db *DB) ListCoordinationEvents(specTaskID string, f EventFilters) ([]*models.CoordinationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM coordination_events WHERE spec_task_id = ?`
	args := []any{specTaskID}

	if f.Type != "" {
		query += " AND event_type = ?"
		args = append(args, string(f.Type))
	}
	if f.SessionID != "" {
		query += " AND (from_session_id = ? OR to_session_id = ? OR to_session_id = '' OR to_session_id IS NULL)"
		args = append(args, f.SessionID, f.SessionID)
	}
	query += " ORDER BY timestamp ASC, rowid ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list coordination events: %w", err)
	}
	defer rows.Close()

	var events []*models.CoordinationEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan coordination event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(scan func(...any) error) (*models.CoordinationEvent, error) {
	var e models.CoordinationEvent
	var eventType string
	var toSessionID, message, payload, response sql.NullString
	var timestamp string
	var acknowledgedAt sql.NullString

	err := scan(
		&e.ID, &e.SpecTaskID, &e.FromSessionID, &toSessionID, &eventType,
		&message, &payload, &timestamp, &e.Acknowledged, &acknowledgedAt, &response,
	)
	if err != nil {
		return nil, err
	}

	e.ToSessionID = toSessionID.String
	e.Type = models.CoordinationEventType(eventType)
	e.Message = message.String
	e.Response = response.String
	if payload.Valid && payload.String != "" && payload.String != "null" {
		json.Unmarshal([]byte(payload.String), &e.Payload)
	}
	e.Timestamp, _ = parseTime(timestamp)
	e.AcknowledgedAt = parseNullableTime(acknowledgedAt)
	return &e, nil
}
