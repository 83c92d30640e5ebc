package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/specdriven/specflow/pkg/models"
)

// SpecTaskFilters narrows ListSpecTasks results.
type SpecTaskFilters struct {
	ProjectID       string
	Status          models.SpecTaskStatus
	Priority        models.Priority
	IncludeArchived bool
	Limit           int
}

const specTaskColumns = `id, project_id, name, description, priority, status, phase,
	original_prompt, requirements_spec, technical_design, implementation_plan,
	external_agent_id, planning_session_id, implementation_session_id,
	spec_approved_by, spec_approved_at, impl_approved_by, impl_approved_at,
	spec_revision_count, requested_changes,
	branch_name, last_commit_hash, pull_request_url, pushed, merged, handoff_state,
	yolo_mode, project_path, workspace_config, archived, created_by,
	created_at, updated_at, started_at, completed_at`

// CreateSpecTask inserts a new spec task.
func (db *DB) CreateSpecTask(t *models.SpecTask) error {
	changes, _ := json.Marshal(t.RequestedChanges)

	_, err := db.Exec(`
		INSERT INTO spec_tasks (`+specTaskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.ProjectID, t.Name, t.Description, string(t.Priority), string(t.Status), string(t.Phase),
		t.OriginalPrompt, t.RequirementsSpec, t.TechnicalDesign, t.ImplementationPlan,
		t.ExternalAgentID, t.PlanningSessionID, t.ImplementationSessionID,
		t.SpecApprovedBy, formatNullableTime(t.SpecApprovedAt), t.ImplApprovedBy, formatNullableTime(t.ImplApprovedAt),
		t.SpecRevisionCount, string(changes),
		t.BranchName, t.LastCommitHash, t.PullRequestURL, t.Pushed, t.Merged, string(t.HandoffState),
		t.YoloMode, t.ProjectPath, string(t.WorkspaceConfig), t.Archived, t.CreatedBy,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create spec task: %w", err)
	}
	return nil
}

// GetSpecTask retrieves a spec task by ID.
func (db *DB) GetSpecTask(id string) (*models.SpecTask, error) {
	row := db.QueryRow(`SELECT `+specTaskColumns+` FROM spec_tasks WHERE id = ?`, id)
	t, err := scanSpecTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("spec task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get spec task: %w", err)
	}
	return t, nil
}

// UpdateSpecTask persists the full spec task row.
func (db *DB) UpdateSpecTask(t *models.SpecTask) error {
	changes, _ := json.Marshal(t.RequestedChanges)

	res, err := db.Exec(`
		UPDATE spec_tasks SET
			project_id = ?, name = ?, description = ?, priority = ?, status = ?, phase = ?,
			original_prompt = ?, requirements_spec = ?, technical_design = ?, implementation_plan = ?,
			external_agent_id = ?, planning_session_id = ?, implementation_session_id = ?,
			spec_approved_by = ?, spec_approved_at = ?, impl_approved_by = ?, impl_approved_at = ?,
			spec_revision_count = ?, requested_changes = ?,
			branch_name = ?, last_commit_hash = ?, pull_request_url = ?, pushed = ?, merged = ?, handoff_state = ?,
			yolo_mode = ?, project_path = ?, workspace_config = ?, archived = ?, created_by = ?,
			updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		t.ProjectID, t.Name, t.Description, string(t.Priority), string(t.Status), string(t.Phase),
		t.OriginalPrompt, t.RequirementsSpec, t.TechnicalDesign, t.ImplementationPlan,
		t.ExternalAgentID, t.PlanningSessionID, t.ImplementationSessionID,
		t.SpecApprovedBy, formatNullableTime(t.SpecApprovedAt), t.ImplApprovedBy, formatNullableTime(t.ImplApprovedAt),
		t.SpecRevisionCount, string(changes),
		t.BranchName, t.LastCommitHash, t.PullRequestURL, t.Pushed, t.Merged, string(t.HandoffState),
		t.YoloMode, t.ProjectPath, string(t.WorkspaceConfig), t.Archived, t.CreatedBy,
		formatTime(t.UpdatedAt), formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update spec task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("spec task %s: %w", t.ID, models.ErrNotFound)
	}
	return nil
}

// CompareAndSwapSpecTaskStatus transitions a spec task's status and phase
// only if the stored status still equals expected. Returns false when
// another writer got there first. Failure and cancellation keep the phase
// the task died in.
func (db *DB) CompareAndSwapSpecTaskStatus(id string, expected, next models.SpecTaskStatus, updatedAt string) (bool, error) {
	phase := string(next.Phase())
	if next == models.SpecTaskStatusFailed || next == models.SpecTaskStatusCancelled {
		phase = ""
	}
	res, err := db.Exec(`
		UPDATE spec_tasks SET status = ?, phase = COALESCE(NULLIF(?, ''), phase), updated_at = ?
		WHERE id = ? AND status = ?
	`, string(next), phase, updatedAt, id, string(expected))
	if err != nil {
		return false, fmt.Errorf("cas spec task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListSpecTasks lists spec tasks matching the filters, newest first.
func (db *DB) ListSpecTasks(f SpecTaskFilters) ([]*models.SpecTask, error) {
	query := `SELECT ` + specTaskColumns + ` FROM spec_tasks WHERE 1=1`
	var args []any

	if !f.IncludeArchived {
		query += " AND archived = 0"
	}
	if f.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		query += " AND priority = ?"
		args = append(args, string(f.Priority))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list spec tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.SpecTask
	for rows.Next() {
		t, err := scanSpecTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan spec task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanSpecTask(scan func(...any) error) (*models.SpecTask, error) {
	var t models.SpecTask
	var priority, status, phase, handoffState string
	var changes, workspaceConfig sql.NullString
	var specApprovedAt, implApprovedAt, startedAt, completedAt sql.NullString
	var createdAt, updatedAt string
	var projectID, description, requirementsSpec, technicalDesign, implementationPlan sql.NullString
	var externalAgentID, planningSessionID, implementationSessionID sql.NullString
	var specApprovedBy, implApprovedBy, branchName, lastCommitHash, pullRequestURL sql.NullString
	var projectPath, createdBy sql.NullString

	err := scan(
		&t.ID, &projectID, &t.Name, &description, &priority, &status, &phase,
		&t.OriginalPrompt, &requirementsSpec, &technicalDesign, &implementationPlan,
		&externalAgentID, &planningSessionID, &implementationSessionID,
		&specApprovedBy, &specApprovedAt, &implApprovedBy, &implApprovedAt,
		&t.SpecRevisionCount, &changes,
		&branchName, &lastCommitHash, &pullRequestURL, &t.Pushed, &t.Merged, &handoffState,
		&t.YoloMode, &projectPath, &workspaceConfig, &t.Archived, &createdBy,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ProjectID = projectID.String
	t.Description = description.String
	t.Priority = models.Priority(priority)
	t.Status = models.SpecTaskStatus(status)
	t.Phase = models.Phase(phase)
	t.RequirementsSpec = requirementsSpec.String
	t.TechnicalDesign = technicalDesign.String
	t.ImplementationPlan = implementationPlan.String
	t.ExternalAgentID = externalAgentID.String
	t.PlanningSessionID = planningSessionID.String
	t.ImplementationSessionID = implementationSessionID.String
	t.SpecApprovedBy = specApprovedBy.String
	t.ImplApprovedBy = implApprovedBy.String
	t.BranchName = branchName.String
	t.LastCommitHash = lastCommitHash.String
	t.PullRequestURL = pullRequestURL.String
	t.HandoffState = models.HandoffState(handoffState)
	t.ProjectPath = projectPath.String
	t.CreatedBy = createdBy.String
	if changes.Valid && changes.String != "" {
		json.Unmarshal([]byte(changes.String), &t.RequestedChanges)
	}
	if workspaceConfig.Valid {
		t.WorkspaceConfig = []byte(workspaceConfig.String)
	}
	t.SpecApprovedAt = parseNullableTime(specApprovedAt)
	t.ImplApprovedAt = parseNullableTime(implApprovedAt)
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return &t, nil
}
