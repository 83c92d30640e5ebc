package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"github.com/specdriven/specflow/internal/bus"
	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

func testTree(t *testing.T) (*state.DB, *bus.Bus, *Tree) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	b := bus.New(db, 64)
	t.Cleanup(b.Close)
	return db, b, NewTree(db, b, zerolog.Nop())
}

func seedTask(t *testing.T, db *state.DB, status models.SpecTaskStatus) *models.SpecTask {
	t.Helper()
	now := time.Now()
	task := &models.SpecTask{
		ID:             models.NewSpecTaskID(),
		Name:           "Add dark mode toggle",
		Priority:       models.PriorityMedium,
		Status:         status,
		Phase:          status.Phase(),
		OriginalPrompt: "Add dark mode toggle",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("seed spec task: %v", err)
	}
	return task
}

func seedSession(t *testing.T, db *state.DB, specTaskID string, status models.WorkSessionStatus) *models.WorkSession {
	t.Helper()
	now := time.Now()
	s := &models.WorkSession{
		ID:             models.NewWorkSessionID(),
		SpecTaskID:     specTaskID,
		AgentSessionID: models.NewAgentSessionID(),
		Name:           "root",
		Phase:          models.PhaseImplementation,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateWorkSession(s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

// seedPlan inserts tasks where deps[i] lists the indices task i depends on.
func seedPlan(t *testing.T, db *state.DB, specTaskID string, deps ...[]int) []*models.ImplementationTask {
	t.Helper()
	tasks := make([]*models.ImplementationTask, len(deps))
	for i, d := range deps {
		tasks[i] = &models.ImplementationTask{
			ID:           models.NewImplementationTaskID(),
			SpecTaskID:   specTaskID,
			Index:        i,
			Title:        "task",
			Status:       models.ImplementationStatusPending,
			Dependencies: d,
			CreatedAt:    time.Now(),
		}
	}
	if err := db.CreateImplementationTasks(tasks); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return tasks
}

func TestSpawnFromActiveParent(t *testing.T) {
	db, b, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusImplementation)
	parent := seedSession(t, db, task.ID, models.WorkSessionStatusActive)

	child, err := tree.Spawn(parent.ID, "research helper", nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if child.ParentWorkSessionID != parent.ID || child.SpawnedBySessionID != parent.ID {
		t.Errorf("spawn lineage wrong: %+v", child)
	}
	if child.Status != models.WorkSessionStatusPending {
		t.Errorf("new child status = %s, want pending", child.Status)
	}

	events, err := b.Query(task.ID, state.EventFilters{Type: models.CoordinationEventSpawn})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 1 || events[0].ToSessionID != child.ID {
		t.Errorf("expected one spawn event addressed to the child, got %v", events)
	}
}

func TestSpawnRequiresActiveParent(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusImplementation)

	for _, status := range []models.WorkSessionStatus{
		models.WorkSessionStatusPending,
		models.WorkSessionStatusCompleted,
		models.WorkSessionStatusCancelled,
		models.WorkSessionStatusBlocked,
	} {
		parent := seedSession(t, db, task.ID, status)
		if _, err := tree.Spawn(parent.ID, "child", nil, nil); !errors.Is(err, models.ErrParentNotActive) {
			t.Errorf("spawn from %s parent: expected ErrParentNotActive, got %v", status, err)
		}
	}
}

func TestCreateImplementationSessionsFanOut(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusSpecApproved)
	seedPlan(t, db, task.ID, nil, []int{0}, []int{0})

	created, err := tree.CreateImplementationSessions(task.ID, "/work/proj", nil, true)
	if err != nil {
		t.Fatalf("create sessions: %v", err)
	}
	if len(created) != 1 || created[0].ImplementationTaskIndex != 0 {
		t.Fatalf("expected a single session for task 0, got %d", len(created))
	}

	// Re-invocation must not duplicate the session for the assigned task.
	again, err := tree.CreateImplementationSessions(task.ID, "/work/proj", nil, true)
	if err != nil {
		t.Fatalf("re-invoke: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("idempotent re-invocation created %d sessions", len(again))
	}
}

func TestFanOutCoversAllReadyTasks(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusSpecApproved)
	seedPlan(t, db, task.ID, nil, nil)

	created, err := tree.CreateImplementationSessions(task.ID, "/work/proj", nil, true)
	if err != nil {
		t.Fatalf("create sessions: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected a session per independent task, got %d", len(created))
	}
	if created[0].AgentSessionID == "" || created[1].AgentSessionID == "" {
		t.Error("sessions created without an agent session binding")
	}
	if created[0].AgentSessionID == created[1].AgentSessionID {
		t.Error("agent session bindings must be unique per work session")
	}
}

func TestSpawnGetsAgentSessionBinding(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusImplementation)
	parent := seedSession(t, db, task.ID, models.WorkSessionStatusActive)

	child, err := tree.Spawn(parent.ID, "helper", nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if child.AgentSessionID == "" || child.AgentSessionID == parent.AgentSessionID {
		t.Errorf("child needs its own agent session, got %q", child.AgentSessionID)
	}
}

func TestCreateImplementationSessionsWrongStatus(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusSpecReview)
	seedPlan(t, db, task.ID, nil)

	if _, err := tree.CreateImplementationSessions(task.ID, "", nil, true); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestCompletionUnblocksDownstreamTasks(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusSpecApproved)
	seedPlan(t, db, task.ID, nil, []int{0}, []int{0})

	created, err := tree.CreateImplementationSessions(task.ID, "", nil, true)
	if err != nil || len(created) != 1 {
		t.Fatalf("fan-out failed: %v (%d sessions)", err, len(created))
	}
	root := created[0]

	if _, err := tree.UpdateStatus(root.ID, models.WorkSessionStatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := tree.UpdateStatus(root.ID, models.WorkSessionStatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	taskRow, err := db.GetImplementationTask(root.ImplementationTaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !taskRow.IsCompleted() {
		t.Errorf("bound task status = %s, want completed", taskRow.Status)
	}

	sessions, err := db.ListWorkSessions(task.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	var spawned []*models.WorkSession
	for _, s := range sessions {
		if s.SpawnedBySessionID == root.ID {
			spawned = append(spawned, s)
		}
	}
	if len(spawned) != 2 {
		t.Fatalf("expected sessions for both unblocked tasks, got %d", len(spawned))
	}
	if spawned[0].ImplementationTaskIndex > spawned[1].ImplementationTaskIndex {
		t.Error("reactive fan-out not in index order")
	}
}

func TestSpawnRejectsSessionAheadOfTaskPhase(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusSpecGeneration)
	parent := seedSession(t, db, task.ID, models.WorkSessionStatusActive)

	if _, err := tree.Spawn(parent.ID, "early bird", nil, nil); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("implementation session under a planning task: expected ErrInvalidState, got %v", err)
	}
}

func TestFanOutRejectsPlanningPhaseTask(t *testing.T) {
	db, _, tree := testTree(t)
	now := time.Now()
	task := &models.SpecTask{
		ID:             models.NewSpecTaskID(),
		Name:           "Add dark mode toggle",
		Priority:       models.PriorityMedium,
		Status:         models.SpecTaskStatusImplementationStart,
		Phase:          models.PhasePlanning,
		OriginalPrompt: "Add dark mode toggle",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("seed spec task: %v", err)
	}
	seedPlan(t, db, task.ID, nil)

	if _, err := tree.CreateImplementationSessions(task.ID, "", nil, true); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for a task still in planning, got %v", err)
	}
}

func TestUpdateStatusRejectsIllegalEdges(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusImplementation)

	tests := []struct {
		from, to models.WorkSessionStatus
	}{
		{models.WorkSessionStatusPending, models.WorkSessionStatusCompleted},
		{models.WorkSessionStatusCompleted, models.WorkSessionStatusActive},
		{models.WorkSessionStatusCancelled, models.WorkSessionStatusActive},
		{models.WorkSessionStatusBlocked, models.WorkSessionStatusCompleted},
	}
	for _, tt := range tests {
		s := seedSession(t, db, task.ID, tt.from)
		if _, err := tree.UpdateStatus(s.ID, tt.to); !errors.Is(err, models.ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestBlockedRecoversToActive(t *testing.T) {
	db, _, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusImplementation)
	s := seedSession(t, db, task.ID, models.WorkSessionStatusBlocked)

	got, err := tree.UpdateStatus(s.ID, models.WorkSessionStatusActive)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got.Status != models.WorkSessionStatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
}

func TestCancellationIsAdvisory(t *testing.T) {
	db, b, tree := testTree(t)
	task := seedTask(t, db, models.SpecTaskStatusImplementation)
	parent := seedSession(t, db, task.ID, models.WorkSessionStatusActive)

	child, err := tree.Spawn(parent.ID, "child", nil, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := tree.UpdateStatus(child.ID, models.WorkSessionStatusActive); err != nil {
		t.Fatalf("activate child: %v", err)
	}

	if _, err := tree.UpdateStatus(parent.ID, models.WorkSessionStatusCancelled); err != nil {
		t.Fatalf("cancel parent: %v", err)
	}

	got, _ := db.GetWorkSession(child.ID)
	if got.Status != models.WorkSessionStatusActive {
		t.Errorf("child must keep running after advisory cancel, got %s", got.Status)
	}

	events, err := b.Query(task.ID, state.EventFilters{Type: models.CoordinationEventNotification})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	found := false
	for _, e := range events {
		if e.FromSessionID == parent.ID && e.ToSessionID == child.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected a cancellation notification from parent to child")
	}
}

// Spawn relationships must form a forest: no session is ever its own
// ancestor, for any sequence of spawns.
func TestSpawnForestProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		db, _, tree := testTree(t)
		task := seedTask(t, db, models.SpecTaskStatusImplementation)
		roots := rapid.IntRange(1, 3).Draw(rt, "roots")

		var active []string
		for i := 0; i < roots; i++ {
			s := seedSession(t, db, task.ID, models.WorkSessionStatusActive)
			active = append(active, s.ID)
		}

		spawns := rapid.IntRange(1, 12).Draw(rt, "spawns")
		for i := 0; i < spawns; i++ {
			parent := active[rapid.IntRange(0, len(active)-1).Draw(rt, "parent")]
			child, err := tree.Spawn(parent, "child", nil, nil)
			if err != nil {
				rt.Fatalf("spawn: %v", err)
			}
			if _, err := tree.UpdateStatus(child.ID, models.WorkSessionStatusActive); err != nil {
				rt.Fatalf("activate: %v", err)
			}
			active = append(active, child.ID)
		}

		sessions, err := db.ListWorkSessions(task.ID)
		if err != nil {
			rt.Fatalf("list: %v", err)
		}
		byID := map[string]*models.WorkSession{}
		for _, s := range sessions {
			byID[s.ID] = s
		}
		for _, s := range sessions {
			seen := map[string]bool{}
			for cur := s; cur.HasParent(); cur = byID[cur.ParentWorkSessionID] {
				if seen[cur.ID] {
					rt.Fatalf("session %s is its own ancestor", cur.ID)
				}
				seen[cur.ID] = true
			}
		}
	})
}
