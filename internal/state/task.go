package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/specdriven/specflow/pkg/models"
)

const implTaskColumns = `id, spec_task_id, task_index, title, description, acceptance_criteria,
	estimated_effort, dependencies, status, assigned_work_session_id, created_at, completed_at`

// CreateImplementationTasks inserts a batch of parsed plan tasks in one
// transaction so a half-written plan never becomes visible.
func (db *DB) CreateImplementationTasks(tasks []*models.ImplementationTask) error {
	return db.Transaction(func(tx *sql.Tx) error {
		for _, t := range tasks {
			deps, _ := json.Marshal(t.Dependencies)
			_, err := tx.Exec(`
				INSERT INTO implementation_tasks (`+implTaskColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				t.ID, t.SpecTaskID, t.Index, t.Title, t.Description, t.AcceptanceCriteria,
				string(t.EstimatedEffort), string(deps), string(t.Status), t.AssignedWorkSessionID,
				formatTime(t.CreatedAt), formatNullableTime(t.CompletedAt),
			)
			if err != nil {
				return fmt.Errorf("create implementation task %d: %w", t.Index, err)
			}
		}
		return nil
	})
}

// DeleteImplementationTasks removes a spec task's plan. Used when a revised
// plan replaces the previous one before implementation has started.
func (db *DB) DeleteImplementationTasks(specTaskID string) error {
	_, err := db.Exec(`DELETE FROM implementation_tasks WHERE spec_task_id = ?`, specTaskID)
	if err != nil {
		return fmt.Errorf("delete implementation tasks: %w", err)
	}
	return nil
}

// GetImplementationTask retrieves an implementation task by ID.
func (db *DB) GetImplementationTask(id string) (*models.ImplementationTask, error) {
	row := db.QueryRow(`SELECT `+implTaskColumns+` FROM implementation_tasks WHERE id = ?`, id)
	t, err := scanImplementationTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("implementation task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get implementation task: %w", err)
	}
	return t, nil
}

// ListImplementationTasks lists a spec task's plan in index order.
func (db *DB) ListImplementationTasks(specTaskID string) ([]*models.ImplementationTask, error) {
	rows, err := db.Query(`
		SELECT `+implTaskColumns+` FROM implementation_tasks
		WHERE spec_task_id = ? ORDER BY task_index ASC
	`, specTaskID)
	if err != nil {
		return nil, fmt.Errorf("list implementation tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ImplementationTask
	for rows.Next() {
		t, err := scanImplementationTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan implementation task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateImplementationTask persists the full task row.
func (db *DB) UpdateImplementationTask(t *models.ImplementationTask) error {
	deps, _ := json.Marshal(t.Dependencies)
	res, err := db.Exec(`
		UPDATE implementation_tasks SET
			title = ?, description = ?, acceptance_criteria = ?, estimated_effort = ?,
			dependencies = ?, status = ?, assigned_work_session_id = ?, completed_at = ?
		WHERE id = ?
	`,
		t.Title, t.Description, t.AcceptanceCriteria, string(t.EstimatedEffort),
		string(deps), string(t.Status), t.AssignedWorkSessionID, formatNullableTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update implementation task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("implementation task %s: %w", t.ID, models.ErrNotFound)
	}
	return nil
}

// ClaimImplementationTask atomically assigns a pending task to a work
// session. Exactly one of N concurrent claimants wins; the rest get
// ErrAlreadyAssigned. A repeat claim by the same session is a no-op so
// CreateImplementationSessions stays idempotent.
func (db *DB) ClaimImplementationTask(taskID, workSessionID string) error {
	res, err := db.Exec(`
		UPDATE implementation_tasks
		SET status = ?, assigned_work_session_id = ?
		WHERE id = ? AND status = ? AND (assigned_work_session_id IS NULL OR assigned_work_session_id = '')
	`, string(models.ImplementationStatusAssigned), workSessionID, taskID, string(models.ImplementationStatusPending))
	if err != nil {
		return fmt.Errorf("claim implementation task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Lost the race, or the task doesn't exist at all.
	t, err := db.GetImplementationTask(taskID)
	if err != nil {
		return err
	}
	if t.AssignedWorkSessionID == workSessionID {
		return nil
	}
	return fmt.Errorf("task %s held by session %s: %w", taskID, t.AssignedWorkSessionID, models.ErrAlreadyAssigned)
}

func scanImplementationTask(scan func(...any) error) (*models.ImplementationTask, error) {
	var t models.ImplementationTask
	var effort, status string
	var description, acceptance, deps, assignedTo sql.NullString
	var createdAt string
	var completedAt sql.NullString

	err := scan(
		&t.ID, &t.SpecTaskID, &t.Index, &t.Title, &description, &acceptance,
		&effort, &deps, &status, &assignedTo, &createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.AcceptanceCriteria = acceptance.String
	t.EstimatedEffort = models.EstimatedEffort(effort)
	t.Status = models.ImplementationStatus(status)
	t.AssignedWorkSessionID = assignedTo.String
	if deps.Valid && deps.String != "" {
		json.Unmarshal([]byte(deps.String), &t.Dependencies)
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}
