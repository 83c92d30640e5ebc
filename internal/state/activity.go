package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/specdriven/specflow/pkg/models"
)

// AppendActivity records a write-once audit entry.
func (db *DB) AppendActivity(e *models.ActivityLogEntry) error {
	metadata, _ := json.Marshal(e.Metadata)
	_, err := db.Exec(`
		INSERT INTO activity_log (id, spec_task_id, work_session_id, activity_type, message, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SpecTaskID, e.WorkSessionID, string(e.ActivityType), e.Message, string(metadata), formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns a spec task's audit trail, newest first.
func (db *DB) ListActivity(specTaskID string, limit int) ([]*models.ActivityLogEntry, error) {
	query := `
		SELECT id, spec_task_id, work_session_id, activity_type, message, metadata, timestamp
		FROM activity_log WHERE spec_task_id = ? ORDER BY timestamp DESC, rowid DESC
	`
	args := []any{specTaskID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []*models.ActivityLogEntry
	for rows.Next() {
		var e models.ActivityLogEntry
		var activityType, timestamp string
		var workSessionID, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.SpecTaskID, &workSessionID, &activityType, &e.Message, &metadata, &timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.WorkSessionID = workSessionID.String
		e.ActivityType = models.ActivityType(activityType)
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		e.Timestamp, _ = parseTime(timestamp)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
