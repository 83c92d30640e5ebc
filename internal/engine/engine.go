// Package engine is the root API of the orchestration workflow: it owns the
// spec task state machine and wires planning, approval, handoff, sessions,
// and liveness together.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdriven/specflow/internal/agent"
	"github.com/specdriven/specflow/internal/handoff"
	"github.com/specdriven/specflow/internal/liveness"
	"github.com/specdriven/specflow/internal/plan"
	"github.com/specdriven/specflow/internal/session"
	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

// Engine coordinates the spec-driven workflow. All status mutations go
// through its transition helper, which validates against the transition
// table and applies the change with a compare-and-swap so concurrent
// mutations are validated against current state, never last-writer-wins.
type Engine struct {
	store   state.Store
	tree    *session.Tree
	gate    *handoff.Gate
	planner agent.Planner
	monitor *liveness.Monitor
	log     zerolog.Logger
	now     func() time.Time

	handoffConfig handoff.Config
}

// New creates an Engine. monitor may be nil when liveness sweeping is
// handled elsewhere.
func New(store state.Store, tree *session.Tree, gate *handoff.Gate, planner agent.Planner, monitor *liveness.Monitor, handoffCfg handoff.Config, log zerolog.Logger) *Engine {
	return &Engine{
		store:         store,
		tree:          tree,
		gate:          gate,
		planner:       planner,
		monitor:       monitor,
		log:           log,
		now:           time.Now,
		handoffConfig: handoffCfg,
	}
}

// CreateOptions are the optional knobs of CreateFromPrompt.
type CreateOptions struct {
	Name        string
	Description string
	CreatedBy   string
	ProjectPath string
	// WorkspaceConfig is an opaque workspace layout blob handed to every
	// implementation session spawned for this task.
	WorkspaceConfig []byte
	// YoloMode skips the human review pause: generated specs are approved
	// automatically.
	YoloMode bool
}

// CreateFromPrompt creates a new spec task in spec_generation from a
// free-text change request.
func (e *Engine) CreateFromPrompt(prompt string, priority models.Priority, projectRef string, opts CreateOptions) (*models.SpecTask, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is empty: %w", models.ErrValidation)
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q: %w", priority, models.ErrValidation)
	}

	name := opts.Name
	if name == "" {
		name = taskName(prompt)
	}

	now := e.now()
	task := &models.SpecTask{
		ID:              models.NewSpecTaskID(),
		ProjectID:       projectRef,
		Name:            name,
		Description:     opts.Description,
		Priority:        priority,
		Status:          models.SpecTaskStatusSpecGeneration,
		Phase:           models.PhasePlanning,
		OriginalPrompt:  prompt,
		HandoffState:    models.HandoffStatePending,
		YoloMode:        opts.YoloMode,
		ProjectPath:     opts.ProjectPath,
		WorkspaceConfig: opts.WorkspaceConfig,
		CreatedBy:       opts.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateSpecTask(task); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("spec_task_id", task.ID).
		Str("priority", string(priority)).
		Bool("yolo", opts.YoloMode).
		Msg("spec task created")
	return task, nil
}

// taskName derives a short display name from the prompt's first line.
func taskName(prompt string) string {
	line := prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > 80 {
		line = line[:77] + "..."
	}
	return line
}

// GenerateSpecs runs a planning pass: the agent produces requirements,
// design, and implementation plan, the plan is parsed into the task DAG,
// and the task moves to spec_review. With yolo mode the review pause is
// skipped: the task is auto-approved and handed off immediately.
//
// Valid from spec_generation, or from spec_changes_requested to start a
// revision round.
func (e *Engine) GenerateSpecs(ctx context.Context, specTaskID string) (*models.SpecTask, error) {
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.SpecTaskStatusSpecChangesRequested {
		if err := e.transition(task, models.SpecTaskStatusSpecGeneration); err != nil {
			return nil, err
		}
	}
	if task.Status != models.SpecTaskStatusSpecGeneration {
		return nil, fmt.Errorf("spec task %s is %s, expected spec_generation: %w",
			specTaskID, task.Status, models.ErrInvalidState)
	}

	docs, err := e.planner.GenerateSpecs(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("planning agent: %w", err)
	}
	tasks, err := plan.Parse(task.ID, docs.ImplementationPlan)
	if err != nil {
		return nil, err
	}

	// A revision replaces the previous plan wholesale.
	if err := e.store.DeleteImplementationTasks(task.ID); err != nil {
		return nil, err
	}
	if err := e.store.CreateImplementationTasks(tasks); err != nil {
		return nil, err
	}

	task.RequirementsSpec = docs.Requirements
	task.TechnicalDesign = docs.Design
	task.ImplementationPlan = docs.ImplementationPlan
	task.UpdatedAt = e.now()
	if err := e.store.UpdateSpecTask(task); err != nil {
		return nil, err
	}

	if task.YoloMode {
		if err := e.transition(task, models.SpecTaskStatusSpecApproved); err != nil {
			return nil, err
		}
		now := e.now()
		task.SpecApprovedBy = "yolo"
		task.SpecApprovedAt = &now
		task.UpdatedAt = now
		if err := e.store.UpdateSpecTask(task); err != nil {
			return nil, err
		}
		return e.gate.ExecuteHandoff(task.ID, e.handoffConfig)
	}

	if err := e.transition(task, models.SpecTaskStatusSpecReview); err != nil {
		return nil, err
	}
	return task, nil
}

// SubmitApproval records a reviewer's verdict. Valid only from spec_review.
// Approval transitions to spec_approved and invokes the handoff gate; a
// handoff failure leaves the approval standing (the task stays
// spec_approved, handoff_failed) and is returned for the caller to retry
// via RetryHandoff. request_changes transitions to spec_changes_requested,
// increments the revision counter, and records the requested changes for
// the next planning round.
//
// approvedBy names the reviewer; comments are free-text review notes and
// are never stored as the approval actor.
func (e *Engine) SubmitApproval(specTaskID string, decision models.ApprovalDecision, changes []string, approvedBy, comments string) (*models.SpecTask, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("unknown decision %q: %w", decision, models.ErrValidation)
	}
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	if !task.InReview() {
		return nil, fmt.Errorf("spec task %s is %s, approval requires spec_review: %w",
			specTaskID, task.Status, models.ErrInvalidState)
	}

	switch decision {
	case models.ApprovalDecisionApprove:
		if err := e.transition(task, models.SpecTaskStatusSpecApproved); err != nil {
			return nil, err
		}
		now := e.now()
		task.SpecApprovedBy = approvedBy
		task.SpecApprovedAt = &now
		task.RequestedChanges = nil
		task.UpdatedAt = now
		if err := e.store.UpdateSpecTask(task); err != nil {
			return nil, err
		}
		e.log.Info().
			Str("spec_task_id", task.ID).
			Str("approved_by", approvedBy).
			Str("comments", comments).
			Msg("specs approved")
		return e.gate.ExecuteHandoff(task.ID, e.handoffConfig)

	default: // request_changes
		if err := e.transition(task, models.SpecTaskStatusSpecChangesRequested); err != nil {
			return nil, err
		}
		task.SpecRevisionCount++
		task.RequestedChanges = changes
		task.UpdatedAt = e.now()
		if err := e.store.UpdateSpecTask(task); err != nil {
			return nil, err
		}
		e.log.Info().
			Str("spec_task_id", task.ID).
			Int("revision", task.SpecRevisionCount).
			Strs("changes", changes).
			Str("comments", comments).
			Msg("changes requested")
		return task, nil
	}
}

// ApproveAndHandoff approves and hands off in one call. Internally it is
// two steps: a failure of the handoff leaves the task spec_approved but not
// in implementation, and callers must retry the handoff, not re-approve.
func (e *Engine) ApproveAndHandoff(specTaskID, approvedBy string) (*models.SpecTask, error) {
	return e.SubmitApproval(specTaskID, models.ApprovalDecisionApprove, nil, approvedBy, "")
}

// RetryHandoff re-runs a failed handoff. The gate is idempotent against
// already-committed files.
func (e *Engine) RetryHandoff(specTaskID string) (*models.SpecTask, error) {
	return e.gate.ExecuteHandoff(specTaskID, e.handoffConfig)
}

// UpdateStatus applies an administrative status change.
func (e *Engine) UpdateStatus(specTaskID string, next models.SpecTaskStatus) (*models.SpecTask, error) {
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", next, models.ErrValidation)
	}
	if err := e.transition(task, next); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdatePriority changes a task's priority. Disallowed on terminal tasks.
func (e *Engine) UpdatePriority(specTaskID string, priority models.Priority) (*models.SpecTask, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q: %w", priority, models.ErrValidation)
	}
	return e.mutate(specTaskID, func(t *models.SpecTask) {
		t.Priority = priority
	})
}

// UpdateDescription changes a task's description. Disallowed on terminal
// tasks.
func (e *Engine) UpdateDescription(specTaskID, description string) (*models.SpecTask, error) {
	return e.mutate(specTaskID, func(t *models.SpecTask) {
		t.Description = description
	})
}

// Archive hides the task from default listings without altering its status,
// so even terminal tasks can be archived.
func (e *Engine) Archive(specTaskID string) (*models.SpecTask, error) {
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	task.Archived = true
	task.UpdatedAt = e.now()
	if err := e.store.UpdateSpecTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// mutate applies an administrative edit under the terminal-state rule.
func (e *Engine) mutate(specTaskID string, edit func(*models.SpecTask)) (*models.SpecTask, error) {
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	if task.Terminal() {
		return nil, fmt.Errorf("spec task %s is %s: %w", specTaskID, task.Status, models.ErrTerminalState)
	}
	edit(task)
	task.UpdatedAt = e.now()
	if err := e.store.UpdateSpecTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// transition validates and applies a spec task status change, updating the
// passed task in place. Phase changes are recorded in the audit trail.
func (e *Engine) transition(task *models.SpecTask, next models.SpecTaskStatus) error {
	if task.Terminal() {
		return fmt.Errorf("spec task %s is %s: %w", task.ID, task.Status, models.ErrTerminalState)
	}
	if !task.Status.CanTransition(next) {
		return fmt.Errorf("spec task %s: %s -> %s: %w", task.ID, task.Status, next, models.ErrInvalidTransition)
	}

	now := e.now()
	swapped, err := e.store.CompareAndSwapSpecTaskStatus(task.ID, task.Status, next, now.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if !swapped {
		cur, err := e.store.GetSpecTask(task.ID)
		if err != nil {
			return err
		}
		return fmt.Errorf("spec task %s changed concurrently, now %s: %w", task.ID, cur.Status, models.ErrInvalidTransition)
	}

	prevPhase := task.Phase
	task.Status = next
	if next != models.SpecTaskStatusFailed && next != models.SpecTaskStatusCancelled {
		task.Phase = next.Phase()
	}
	task.UpdatedAt = now
	if task.Phase != prevPhase {
		e.recordActivity(task.ID, models.ActivityPhaseTransition,
			fmt.Sprintf("entered %s phase (%s)", task.Phase, next))
	}
	return nil
}

func (e *Engine) recordActivity(specTaskID string, typ models.ActivityType, msg string) {
	err := e.store.AppendActivity(&models.ActivityLogEntry{
		ID:           models.NewActivityID(),
		SpecTaskID:   specTaskID,
		ActivityType: typ,
		Message:      msg,
		Timestamp:    e.now(),
	})
	if err != nil {
		e.log.Error().Err(err).Str("type", string(typ)).Msg("failed to append activity")
	}
}
