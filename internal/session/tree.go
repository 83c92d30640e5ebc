// Package session manages the work-session spawn tree: creation, spawn
// relationships, the status lifecycle, and the fan-out of implementation
// sessions from the plan DAG.
package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdriven/specflow/internal/bus"
	"github.com/specdriven/specflow/internal/plan"
	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

// Store is the slice of persistence the tree needs.
type Store interface {
	state.SpecTaskStore
	state.WorkSessionStore
	state.ImplementationTaskStore
	state.ActivityStore
}

// Tree coordinates work sessions under spec tasks. Sessions execute
// concurrently; the tree only serializes their bookkeeping, using
// compare-and-swap transitions so racing writers are validated against
// current state instead of last-writer-wins.
type Tree struct {
	store Store
	bus   *bus.Bus
	log   zerolog.Logger
	now   func() time.Time
}

// NewTree creates a Tree over the given store and event bus.
func NewTree(store Store, b *bus.Bus, log zerolog.Logger) *Tree {
	return &Tree{store: store, bus: b, log: log, now: time.Now}
}

// Spawn creates a child work session under an active parent and announces it
// with a spawn coordination event. The child starts pending; the caller (or
// the external agent host) activates it when execution begins.
func (t *Tree) Spawn(parentID, name string, agentConfig, environmentConfig []byte) (*models.WorkSession, error) {
	parent, err := t.store.GetWorkSession(parentID)
	if err != nil {
		return nil, err
	}
	if !parent.CanSpawn() {
		return nil, fmt.Errorf("session %s is %s: %w", parentID, parent.Status, models.ErrParentNotActive)
	}
	if err := t.checkAncestry(parent); err != nil {
		return nil, err
	}

	// The child inherits the parent's phase, which must not be ahead of
	// the phase the owning task has actually reached.
	task, err := t.store.GetSpecTask(parent.SpecTaskID)
	if err != nil {
		return nil, err
	}
	if !parent.Phase.AtOrBefore(task.Phase) {
		return nil, fmt.Errorf("session phase %s is ahead of spec task phase %s: %w",
			parent.Phase, task.Phase, models.ErrInvalidState)
	}

	now := t.now()
	child := &models.WorkSession{
		ID:                  models.NewWorkSessionID(),
		SpecTaskID:          parent.SpecTaskID,
		AgentSessionID:      models.NewAgentSessionID(),
		Name:                name,
		Phase:               parent.Phase,
		Status:              models.WorkSessionStatusPending,
		ParentWorkSessionID: parent.ID,
		SpawnedBySessionID:  parent.ID,
		AgentConfig:         agentConfig,
		EnvironmentConfig:   environmentConfig,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := t.store.CreateWorkSession(child); err != nil {
		return nil, err
	}

	if err := t.bus.Publish(&models.CoordinationEvent{
		SpecTaskID:    parent.SpecTaskID,
		FromSessionID: parent.ID,
		ToSessionID:   child.ID,
		Type:          models.CoordinationEventSpawn,
		Message:       fmt.Sprintf("spawned session %q", name),
	}); err != nil {
		return nil, fmt.Errorf("publish spawn event: %w", err)
	}
	t.recordActivity(parent.SpecTaskID, child.ID, models.ActivitySessionSpawned,
		fmt.Sprintf("session %s spawned %q", parent.ID, name), nil)

	t.log.Info().
		Str("parent", parent.ID).
		Str("child", child.ID).
		Str("name", name).
		Msg("spawned work session")
	return child, nil
}

// checkAncestry walks the parent chain and rejects corrupted spawn data. A
// session appearing twice on its own ancestor path would break the forest
// invariant; that is data corruption and is surfaced, never repaired.
func (t *Tree) checkAncestry(s *models.WorkSession) error {
	seen := map[string]bool{}
	for cur := s; cur.HasParent(); {
		if seen[cur.ID] {
			return fmt.Errorf("session %s is its own ancestor: %w", cur.ID, models.ErrDependencyViolation)
		}
		seen[cur.ID] = true
		parent, err := t.store.GetWorkSession(cur.ParentWorkSessionID)
		if err != nil {
			return fmt.Errorf("broken parent chain at %s: %w", cur.ID, err)
		}
		cur = parent
	}
	return nil
}

// CreateImplementationSessions fans the approved plan out into root work
// sessions, one per currently-ready task. Tasks whose dependencies are not
// yet completed get their sessions later, reactively, as upstream sessions
// complete. The claim on the implementation task makes re-invocation
// idempotent: a task already assigned is skipped, never duplicated.
func (t *Tree) CreateImplementationSessions(specTaskID, projectPath string, workspaceConfig []byte, autoCreate bool) ([]*models.WorkSession, error) {
	task, err := t.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	switch task.Status {
	case models.SpecTaskStatusSpecApproved, models.SpecTaskStatusImplementationStart:
	default:
		return nil, fmt.Errorf("spec task %s is %s, expected spec_approved or implementation_start: %w",
			specTaskID, task.Status, models.ErrInvalidState)
	}
	if !autoCreate {
		return nil, nil
	}
	return t.spawnReadySessions(task, projectPath, workspaceConfig, "")
}

// spawnReadySessions claims every currently-ready implementation task and
// creates a pending root session for it. spawnedBy, when set, records which
// completing session caused the fan-out.
func (t *Tree) spawnReadySessions(task *models.SpecTask, projectPath string, workspaceConfig []byte, spawnedBy string) ([]*models.WorkSession, error) {
	// At spec_approved the stored phase still reads planning; the handoff
	// flips it to implementation in the same execution that fans out.
	if task.Status != models.SpecTaskStatusSpecApproved && !models.PhaseImplementation.AtOrBefore(task.Phase) {
		return nil, fmt.Errorf("spec task %s is in %s phase, implementation sessions would run ahead: %w",
			task.ID, task.Phase, models.ErrInvalidState)
	}

	tasks, err := t.store.ListImplementationTasks(task.ID)
	if err != nil {
		return nil, err
	}

	var created []*models.WorkSession
	for _, ready := range plan.NextReady(tasks) {
		sessionID := models.NewWorkSessionID()
		if err := t.store.ClaimImplementationTask(ready.ID, sessionID); err != nil {
			if models.IsRaceLost(err) {
				continue // another caller got here first
			}
			return created, err
		}

		now := t.now()
		s := &models.WorkSession{
			ID:                      sessionID,
			SpecTaskID:              task.ID,
			AgentSessionID:          models.NewAgentSessionID(),
			Name:                    fmt.Sprintf("Task %d: %s", ready.Index+1, ready.Title),
			Description:             ready.Description,
			Phase:                   models.PhaseImplementation,
			Status:                  models.WorkSessionStatusPending,
			ImplementationTaskID:    ready.ID,
			ImplementationTaskIndex: ready.Index,
			ImplementationTaskTitle: ready.Title,
			SpawnedBySessionID:      spawnedBy,
			EnvironmentConfig:       workspaceConfig,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		if err := t.store.CreateWorkSession(s); err != nil {
			return created, err
		}
		t.recordActivity(task.ID, s.ID, models.ActivitySessionCreated,
			fmt.Sprintf("created session for task %d %q", ready.Index+1, ready.Title),
			map[string]interface{}{"project_path": projectPath, "task_index": ready.Index})
		created = append(created, s)
	}
	return created, nil
}

// UpdateStatus applies a status transition to a work session, validated
// against the transition graph and against the stored state at write time.
// Completing a session completes its bound implementation task and fans out
// sessions for any tasks the completion unblocked. Cancellation is advisory:
// active children are notified, not stopped.
func (t *Tree) UpdateStatus(sessionID string, next models.WorkSessionStatus) (*models.WorkSession, error) {
	s, err := t.store.GetWorkSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", next, models.ErrValidation)
	}
	if !s.Status.CanTransition(next) {
		return nil, fmt.Errorf("session %s: %s -> %s: %w", sessionID, s.Status, next, models.ErrInvalidTransition)
	}

	// Validate the DAG before flipping the session so a consistency bug
	// fails the operation with nothing half-applied.
	if next == models.WorkSessionStatusCompleted && s.ImplementationTaskID != "" {
		tasks, err := t.store.ListImplementationTasks(s.SpecTaskID)
		if err != nil {
			return nil, err
		}
		if err := plan.ValidateCompletion(tasks, s.ImplementationTaskIndex); err != nil {
			return nil, err
		}
	}

	now := t.now()
	swapped, err := t.store.CompareAndSwapWorkSessionStatus(sessionID, s.Status, next, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	if !swapped {
		cur, err := t.store.GetWorkSession(sessionID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session %s changed concurrently, now %s: %w", sessionID, cur.Status, models.ErrInvalidTransition)
	}

	s, err = t.store.GetWorkSession(sessionID)
	if err != nil {
		return nil, err
	}
	if next == models.WorkSessionStatusActive && s.StartedAt == nil {
		s.StartedAt = &now
	}
	if next.Terminal() {
		s.CompletedAt = &now
	}
	s.UpdatedAt = now
	if err := t.store.UpdateWorkSession(s); err != nil {
		return nil, err
	}

	switch next {
	case models.WorkSessionStatusCompleted:
		if err := t.onSessionCompleted(s); err != nil {
			return s, err
		}
	case models.WorkSessionStatusCancelled:
		if err := t.notifyChildren(s); err != nil {
			return s, err
		}
	}
	return s, nil
}

// MarkTaskCompleted completes an implementation task directly, enforcing the
// same DAG invariant the session path enforces.
func (t *Tree) MarkTaskCompleted(taskID string) error {
	task, err := t.store.GetImplementationTask(taskID)
	if err != nil {
		return err
	}
	tasks, err := t.store.ListImplementationTasks(task.SpecTaskID)
	if err != nil {
		return err
	}
	if err := plan.ValidateCompletion(tasks, task.Index); err != nil {
		return err
	}

	now := t.now()
	task.Status = models.ImplementationStatusCompleted
	task.CompletedAt = &now
	return t.store.UpdateImplementationTask(task)
}

func (t *Tree) onSessionCompleted(s *models.WorkSession) error {
	t.recordActivity(s.SpecTaskID, s.ID, models.ActivitySessionCompleted,
		fmt.Sprintf("session %q completed", s.Name), nil)

	if s.ImplementationTaskID == "" {
		return nil
	}
	if err := t.MarkTaskCompleted(s.ImplementationTaskID); err != nil {
		return err
	}
	t.recordActivity(s.SpecTaskID, s.ID, models.ActivityTaskCompleted,
		fmt.Sprintf("task %d %q completed", s.ImplementationTaskIndex+1, s.ImplementationTaskTitle), nil)

	task, err := t.store.GetSpecTask(s.SpecTaskID)
	if err != nil {
		return err
	}
	created, err := t.spawnReadySessions(task, "", s.EnvironmentConfig, s.ID)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		t.log.Info().
			Str("completed_session", s.ID).
			Int("unblocked", len(created)).
			Msg("completion unblocked downstream tasks")
	}
	return nil
}

// notifyChildren publishes an advisory cancellation notice to every child
// still running. Children keep executing until they observe the notice.
func (t *Tree) notifyChildren(s *models.WorkSession) error {
	children, err := t.store.ListChildWorkSessions(s.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status.Terminal() {
			continue
		}
		if err := t.bus.Publish(&models.CoordinationEvent{
			SpecTaskID:    s.SpecTaskID,
			FromSessionID: s.ID,
			ToSessionID:   c.ID,
			Type:          models.CoordinationEventNotification,
			Message:       "parent session cancelled; wind down when convenient",
		}); err != nil {
			return fmt.Errorf("notify child %s: %w", c.ID, err)
		}
	}
	return nil
}

func (t *Tree) recordActivity(specTaskID, sessionID string, typ models.ActivityType, msg string, meta map[string]interface{}) {
	err := t.store.AppendActivity(&models.ActivityLogEntry{
		ID:            models.NewActivityID(),
		SpecTaskID:    specTaskID,
		WorkSessionID: sessionID,
		ActivityType:  typ,
		Message:       msg,
		Metadata:      meta,
		Timestamp:     t.now(),
	})
	if err != nil {
		t.log.Error().Err(err).Str("type", string(typ)).Msg("failed to append activity")
	}
}
