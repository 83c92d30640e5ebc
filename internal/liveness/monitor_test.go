package liveness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

const (
	testWarn      = 10 * time.Minute
	testTerminate = 30 * time.Minute
)

func testSetup(t *testing.T) (*state.DB, *Monitor) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	m := NewMonitor(db, db, db, testWarn, testTerminate, zerolog.Nop())
	return db, m
}

func seedBoundSession(t *testing.T, db *state.DB, agentID string) (taskID, sessionID string) {
	t.Helper()
	now := time.Now()
	task := &models.SpecTask{
		ID:             models.NewSpecTaskID(),
		Name:           "Add dark mode toggle",
		Priority:       models.PriorityMedium,
		Status:         models.SpecTaskStatusImplementation,
		Phase:          models.PhaseImplementation,
		OriginalPrompt: "Add dark mode toggle",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	s := &models.WorkSession{
		ID:             models.NewWorkSessionID(),
		SpecTaskID:     task.ID,
		AgentSessionID: agentID,
		Phase:          models.PhaseImplementation,
		Status:         models.WorkSessionStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateWorkSession(s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return task.ID, s.ID
}

func TestEvaluateThresholds(t *testing.T) {
	db, m := testSetup(t)
	taskID, _ := seedBoundSession(t, db, "agent-1")

	beat := time.Now()
	if err := m.Register("agent-1", taskID, beat); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RecordHeartbeat("agent-1", beat); err != nil {
		t.Fatalf("record: %v", err)
	}

	tests := []struct {
		name            string
		at              time.Time
		warning         bool
		shouldTerminate bool
	}{
		{"fresh", beat.Add(time.Minute), false, false},
		{"past warning", beat.Add(testWarn + time.Minute), true, false},
		{"past hard threshold", beat.Add(testTerminate + time.Minute), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := m.Evaluate("agent-1", tt.at)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if a.Warning != tt.warning || a.ShouldTerminate != tt.shouldTerminate {
				t.Errorf("got warning=%v terminate=%v, want %v/%v",
					a.Warning, a.ShouldTerminate, tt.warning, tt.shouldTerminate)
			}
			if !tt.shouldTerminate && a.WillTerminateIn <= 0 {
				t.Error("live agent must have positive time remaining")
			}
			if tt.shouldTerminate && a.WillTerminateIn != 0 {
				t.Errorf("dead agent remaining time = %v, want 0", a.WillTerminateIn)
			}
		})
	}
}

func TestEvaluateNeverBeatIdlesFromCreation(t *testing.T) {
	db, m := testSetup(t)
	taskID, _ := seedBoundSession(t, db, "agent-1")

	created := time.Now().Add(-20 * time.Minute)
	if err := m.Register("agent-1", taskID, created); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, err := m.Evaluate("agent-1", time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if a.IdleMinutes < 19 || !a.Warning || a.ShouldTerminate {
		t.Errorf("expected ~20 idle minutes past warning only, got %+v", a)
	}
}

func TestEvaluateUnknownAgent(t *testing.T) {
	_, m := testSetup(t)
	if _, err := m.Evaluate("ghost", time.Now()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepBlocksDeadAgentSession(t *testing.T) {
	db, m := testSetup(t)
	taskID, sessionID := seedBoundSession(t, db, "agent-1")

	beat := time.Now().Add(-testTerminate - time.Minute)
	if err := m.Register("agent-1", taskID, beat); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RecordHeartbeat("agent-1", beat); err != nil {
		t.Fatalf("record: %v", err)
	}

	results, err := m.Sweep(time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 1 || !results[0].ShouldTerminate {
		t.Fatalf("expected one terminating assessment, got %+v", results)
	}

	s, err := db.GetWorkSession(sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Status != models.WorkSessionStatusBlocked {
		t.Errorf("session status = %s, want blocked", s.Status)
	}

	entries, err := db.ListActivity(taskID, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.ActivityType == models.ActivityAgentDisconnected && e.WorkSessionID == sessionID {
			found = true
		}
	}
	if !found {
		t.Error("expected an agent_disconnected audit entry")
	}

	// A second sweep must not double-apply: the session already left active.
	if _, err := m.Sweep(time.Now()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	entries, _ = db.ListActivity(taskID, 0)
	count := 0
	for _, e := range entries {
		if e.ActivityType == models.ActivityAgentDisconnected {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one disconnect entry, got %d", count)
	}
}

func TestSweepLeavesLiveAgentsAlone(t *testing.T) {
	db, m := testSetup(t)
	taskID, sessionID := seedBoundSession(t, db, "agent-1")

	if err := m.Register("agent-1", taskID, time.Now()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RecordHeartbeat("agent-1", time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}

	if _, err := m.Sweep(time.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	s, _ := db.GetWorkSession(sessionID)
	if s.Status != models.WorkSessionStatusActive {
		t.Errorf("live agent's session flipped to %s", s.Status)
	}
}

func TestWatcherRecordsHeartbeatOnTouch(t *testing.T) {
	db, m := testSetup(t)
	dir := t.TempDir()
	w := NewWatcher(dir, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Give the watcher a moment to install before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "agent-9"), []byte("beat"), 0o644); err != nil {
		t.Fatalf("touch: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		r, err := db.GetHeartbeat("agent-9")
		if err != nil {
			t.Fatalf("get heartbeat: %v", err)
		}
		if r != nil && r.LastBeat != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never recorded the heartbeat")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
