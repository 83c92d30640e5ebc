package handoff

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdriven/specflow/internal/bus"
	"github.com/specdriven/specflow/internal/git"
	"github.com/specdriven/specflow/internal/session"
	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

func testGate(t *testing.T) (*state.DB, *git.Fake, *Gate) {
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
	tree := session.NewTree(db, b, zerolog.Nop())
	fake := git.NewFake()
	return db, fake, NewGate(db, fake, tree, zerolog.Nop())
}

func seedApprovedTask(t *testing.T, db *state.DB) *models.SpecTask {
	t.Helper()
	now := time.Now()
	task := &models.SpecTask{
		ID:                 models.NewSpecTaskID(),
		Name:               "Add dark mode toggle",
		Priority:           models.PriorityMedium,
		Status:             models.SpecTaskStatusSpecApproved,
		Phase:              models.PhasePlanning,
		OriginalPrompt:     "Add dark mode toggle",
		RequirementsSpec:   "# Requirements\n\nToggle persists across restarts.\n",
		TechnicalDesign:    "# Design\n\nTheme stored in settings service.\n",
		ImplementationPlan: "## Task 1: Wire settings\n\n### Description\nAdd the setting.\n",
		HandoffState:       models.HandoffStatePending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	impl := &models.ImplementationTask{
		ID:         models.NewImplementationTaskID(),
		SpecTaskID: task.ID,
		Index:      0,
		Title:      "Wire settings",
		Status:     models.ImplementationStatusPending,
		CreatedAt:  now,
	}
	if err := db.CreateImplementationTasks([]*models.ImplementationTask{impl}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return task
}

func TestExecuteHandoffSuccess(t *testing.T) {
	db, fake, gate := testGate(t)
	task := seedApprovedTask(t, db)

	got, err := gate.ExecuteHandoff(task.ID, Config{})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if got.HandoffState != models.HandoffStateHandedOff {
		t.Errorf("handoff state = %s", got.HandoffState)
	}
	if got.Status != models.SpecTaskStatusImplementationStart || got.Phase != models.PhaseImplementation {
		t.Errorf("task not in implementation: status=%s phase=%s", got.Status, got.Phase)
	}
	if got.BranchName == "" || got.LastCommitHash == "" {
		t.Errorf("git tracking not recorded: %+v", got)
	}

	if n := fake.CommitCount(got.BranchName); n != 3 {
		t.Errorf("expected 3 commits (one per document), got %d", n)
	}
	content, exists, err := fake.ShowFile(got.BranchName, "specs/"+task.ID+"/requirements.md")
	if err != nil || !exists {
		t.Fatalf("requirements not committed: %v", err)
	}
	if content != task.RequirementsSpec {
		t.Error("committed requirements content differs")
	}

	// Handoff fans out the first implementation sessions.
	sessions, err := db.ListWorkSessions(task.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ImplementationTaskIndex != 0 {
		t.Errorf("expected one session for the ready task, got %d", len(sessions))
	}
}

func TestExecuteHandoffRequiresApproval(t *testing.T) {
	db, _, gate := testGate(t)
	task := seedApprovedTask(t, db)
	task.Status = models.SpecTaskStatusSpecReview
	if err := db.UpdateSpecTask(task); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := gate.ExecuteHandoff(task.ID, Config{}); !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

// A failure after two of three documents leaves the task handoff_failed with
// the partial result recorded; a retry commits only the missing document and
// never re-commits the first two.
func TestExecuteHandoffPartialFailureThenRetry(t *testing.T) {
	db, fake, gate := testGate(t)
	task := seedApprovedTask(t, db)
	fake.FailAfterCommits = 2

	_, err := gate.ExecuteHandoff(task.ID, Config{})
	var hErr *models.HandoffError
	if !errors.As(err, &hErr) {
		t.Fatalf("expected HandoffError, got %v", err)
	}
	if hErr.Stage != "commit" || len(hErr.CommittedFiles) != 2 || hErr.CommitHash == "" {
		t.Errorf("partial progress not reported: %+v", hErr)
	}

	stored, err := db.GetSpecTask(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.HandoffState != models.HandoffStateFailed {
		t.Errorf("handoff state = %s, want handoff_failed", stored.HandoffState)
	}
	if stored.Status != models.SpecTaskStatusSpecApproved {
		t.Errorf("status = %s, approval must survive a failed handoff", stored.Status)
	}
	if n := fake.CommitCount(stored.BranchName); n != 2 {
		t.Fatalf("expected 2 commits before failure, got %d", n)
	}

	// Retry with identical content succeeds and commits only the missing
	// document.
	fake.FailAfterCommits = -1
	got, err := gate.ExecuteHandoff(task.ID, Config{})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.HandoffState != models.HandoffStateHandedOff {
		t.Errorf("retry left state %s", got.HandoffState)
	}
	if n := fake.CommitCount(got.BranchName); n != 3 {
		t.Errorf("expected exactly 3 commits after retry, got %d", n)
	}

	commits, _ := fake.Log(got.BranchName, 0)
	seen := map[string]int{}
	for _, c := range commits {
		seen[c.Message]++
	}
	for msg, n := range seen {
		if n != 1 {
			t.Errorf("commit %q appears %d times, want once", msg, n)
		}
	}
}

func TestExecuteHandoffIdempotentAfterSuccess(t *testing.T) {
	db, fake, gate := testGate(t)
	task := seedApprovedTask(t, db)

	got, err := gate.ExecuteHandoff(task.ID, Config{})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	before := fake.CommitCount(got.BranchName)

	again, err := gate.ExecuteHandoff(task.ID, Config{})
	if err != nil {
		t.Fatalf("repeat handoff: %v", err)
	}
	if again.HandoffState != models.HandoffStateHandedOff {
		t.Errorf("repeat changed state to %s", again.HandoffState)
	}
	if fake.CommitCount(got.BranchName) != before {
		t.Error("repeat handoff created commits")
	}
}

func TestExecuteHandoffPushAndPullRequest(t *testing.T) {
	db, fake, gate := testGate(t)
	task := seedApprovedTask(t, db)

	got, err := gate.ExecuteHandoff(task.ID, Config{OpenPullRequest: true})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if !got.Pushed || got.PullRequestURL == "" {
		t.Errorf("push/pr not recorded: pushed=%v url=%q", got.Pushed, got.PullRequestURL)
	}
	if len(fake.Pushed) != 1 || fake.Pushed[0] != got.BranchName {
		t.Errorf("branch not pushed: %v", fake.Pushed)
	}
}

func TestExecuteHandoffPushFailureKeepsCommits(t *testing.T) {
	db, fake, gate := testGate(t)
	task := seedApprovedTask(t, db)
	fake.FailPush = true

	_, err := gate.ExecuteHandoff(task.ID, Config{Push: true})
	var hErr *models.HandoffError
	if !errors.As(err, &hErr) {
		t.Fatalf("expected HandoffError, got %v", err)
	}
	if hErr.Stage != "push" || len(hErr.CommittedFiles) != 3 {
		t.Errorf("push failure must report all committed files: %+v", hErr)
	}

	stored, _ := db.GetSpecTask(task.ID)
	if n := fake.CommitCount(stored.BranchName); n != 3 {
		t.Errorf("commits lost after push failure: %d", n)
	}
}
