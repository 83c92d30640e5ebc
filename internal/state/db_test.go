package state

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/specdriven/specflow/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSpecTask() *models.SpecTask {
	now := time.Now()
	return &models.SpecTask{
		ID:             models.NewSpecTaskID(),
		Name:           "Add dark mode toggle",
		Priority:       models.PriorityMedium,
		Status:         models.SpecTaskStatusSpecGeneration,
		Phase:          models.PhasePlanning,
		OriginalPrompt: "Add dark mode toggle",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSpecTaskRoundTrip(t *testing.T) {
	db := testDB(t)

	task := testSpecTask()
	task.RequestedChanges = []string{"add unit tests", "tighten error handling"}
	task.YoloMode = true
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetSpecTask(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != task.Name || got.Status != task.Status || got.Priority != task.Priority {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.YoloMode {
		t.Error("yolo mode lost in round trip")
	}
	if len(got.RequestedChanges) != 2 || got.RequestedChanges[0] != "add unit tests" {
		t.Errorf("requested changes = %v", got.RequestedChanges)
	}

	got.Status = models.SpecTaskStatusSpecReview
	got.SpecRevisionCount = 1
	if err := db.UpdateSpecTask(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, err := db.GetSpecTask(task.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got2.Status != models.SpecTaskStatusSpecReview || got2.SpecRevisionCount != 1 {
		t.Errorf("update not persisted: %+v", got2)
	}
}

func TestGetSpecTaskNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetSpecTask("spt_missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSpecTasksFilters(t *testing.T) {
	db := testDB(t)

	a := testSpecTask()
	b := testSpecTask()
	b.Status = models.SpecTaskStatusSpecReview
	c := testSpecTask()
	c.Archived = true
	for _, task := range []*models.SpecTask{a, b, c} {
		if err := db.CreateSpecTask(task); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tasks, err := db.ListSpecTasks(SpecTaskFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("default list should hide archived, got %d tasks", len(tasks))
	}

	tasks, err = db.ListSpecTasks(SpecTaskFilters{IncludeArchived: true})
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 with archived, got %d", len(tasks))
	}

	tasks, err = db.ListSpecTasks(SpecTaskFilters{Status: models.SpecTaskStatusSpecReview})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != b.ID {
		t.Errorf("status filter returned wrong tasks")
	}
}

func TestWorkSessionCASStatus(t *testing.T) {
	db := testDB(t)
	task := testSpecTask()
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	now := time.Now()
	s := &models.WorkSession{
		ID:             models.NewWorkSessionID(),
		SpecTaskID:     task.ID,
		AgentSessionID: "ses_1",
		Phase:          models.PhaseImplementation,
		Status:         models.WorkSessionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateWorkSession(s); err != nil {
		t.Fatalf("create session: %v", err)
	}

	ok, err := db.CompareAndSwapWorkSessionStatus(s.ID, models.WorkSessionStatusPending, models.WorkSessionStatusActive, formatTime(time.Now()))
	if err != nil || !ok {
		t.Fatalf("first cas failed: ok=%v err=%v", ok, err)
	}
	// Stale expectation loses.
	ok, err = db.CompareAndSwapWorkSessionStatus(s.ID, models.WorkSessionStatusPending, models.WorkSessionStatusActive, formatTime(time.Now()))
	if err != nil {
		t.Fatalf("second cas errored: %v", err)
	}
	if ok {
		t.Error("cas with stale expected status must not succeed")
	}
}

func TestClaimImplementationTaskExclusive(t *testing.T) {
	db := testDB(t)
	task := testSpecTask()
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	impl := &models.ImplementationTask{
		ID:         models.NewImplementationTaskID(),
		SpecTaskID: task.ID,
		Index:      0,
		Title:      "Only task",
		Status:     models.ImplementationStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := db.CreateImplementationTasks([]*models.ImplementationTask{impl}); err != nil {
		t.Fatalf("create impl task: %v", err)
	}

	const claimants = 8
	var wg sync.WaitGroup
	errs := make([]error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.ClaimImplementationTask(impl.ID, models.NewWorkSessionID())
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, models.ErrAlreadyAssigned):
			losers++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 || losers != claimants-1 {
		t.Errorf("winners=%d losers=%d, want exactly one winner", winners, losers)
	}
}

func TestClaimIdempotentForSameSession(t *testing.T) {
	db := testDB(t)
	task := testSpecTask()
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	impl := &models.ImplementationTask{
		ID:         models.NewImplementationTaskID(),
		SpecTaskID: task.ID,
		Title:      "T",
		Status:     models.ImplementationStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := db.CreateImplementationTasks([]*models.ImplementationTask{impl}); err != nil {
		t.Fatalf("create impl task: %v", err)
	}

	sessionID := models.NewWorkSessionID()
	if err := db.ClaimImplementationTask(impl.ID, sessionID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := db.ClaimImplementationTask(impl.ID, sessionID); err != nil {
		t.Errorf("repeat claim by holder should be a no-op, got %v", err)
	}
	if err := db.ClaimImplementationTask(impl.ID, models.NewWorkSessionID()); !errors.Is(err, models.ErrAlreadyAssigned) {
		t.Errorf("claim by another session should lose, got %v", err)
	}
}

func TestAcknowledgeOnce(t *testing.T) {
	db := testDB(t)
	task := testSpecTask()
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	e := &models.CoordinationEvent{
		ID:            models.NewCoordinationEventID(),
		SpecTaskID:    task.ID,
		FromSessionID: "stws_a",
		Type:          models.CoordinationEventRequest,
		Message:       "need the schema",
		Timestamp:     time.Now(),
	}
	if err := db.AppendCoordinationEvent(e); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := db.AcknowledgeCoordinationEvent(e.ID, "on it", time.Now()); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	err := db.AcknowledgeCoordinationEvent(e.ID, "me too", time.Now())
	if !errors.Is(err, models.ErrAlreadyAcknowledged) {
		t.Errorf("expected ErrAlreadyAcknowledged, got %v", err)
	}

	got, err := db.GetCoordinationEvent(e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Response != "on it" {
		t.Errorf("second ack must not overwrite response, got %q", got.Response)
	}
}

func TestListCoordinationEventsOrderAndFilters(t *testing.T) {
	db := testDB(t)
	task := testSpecTask()
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	base := time.Now()
	for i, typ := range []models.CoordinationEventType{
		models.CoordinationEventNotification,
		models.CoordinationEventSpawn,
		models.CoordinationEventCompletion,
	} {
		e := &models.CoordinationEvent{
			ID:            models.NewCoordinationEventID(),
			SpecTaskID:    task.ID,
			FromSessionID: "stws_a",
			Type:          typ,
			Timestamp:     base.Add(time.Duration(i) * time.Second),
		}
		if err := db.AppendCoordinationEvent(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := db.ListCoordinationEvents(task.ID, EventFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Error("events not in ascending timestamp order")
		}
	}

	events, err = db.ListCoordinationEvents(task.ID, EventFilters{Type: models.CoordinationEventSpawn})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(events) != 1 || events[0].Type != models.CoordinationEventSpawn {
		t.Errorf("type filter failed: %v", events)
	}

	events, err = db.ListCoordinationEvents(task.ID, EventFilters{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("limit ignored, got %d events", len(events))
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	db := testDB(t)

	created := time.Now().Add(-time.Hour)
	if err := db.RegisterAgent("agent-1", "spt_x", created); err != nil {
		t.Fatalf("register: %v", err)
	}

	r, err := db.GetHeartbeat("agent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r == nil || r.LastBeat != nil {
		t.Fatalf("expected registered agent with no beats, got %+v", r)
	}

	beat := time.Now()
	if err := db.RecordHeartbeat("agent-1", beat); err != nil {
		t.Fatalf("record: %v", err)
	}
	r, err = db.GetHeartbeat("agent-1")
	if err != nil {
		t.Fatalf("get after beat: %v", err)
	}
	if r.LastBeat == nil || r.LastBeat.Unix() != beat.Unix() {
		t.Errorf("last beat not updated: %+v", r)
	}
	// Registration must not clobber an existing row.
	if err := db.RegisterAgent("agent-1", "spt_x", time.Now()); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	r, _ = db.GetHeartbeat("agent-1")
	if r.LastBeat == nil {
		t.Error("re-registration erased heartbeat")
	}

	missing, err := db.GetHeartbeat("agent-unknown")
	if err != nil || missing != nil {
		t.Errorf("unknown agent should be nil, nil; got %+v, %v", missing, err)
	}
}

func TestActivityLog(t *testing.T) {
	db := testDB(t)
	task := testSpecTask()
	if err := db.CreateSpecTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	for i := 0; i < 3; i++ {
		e := &models.ActivityLogEntry{
			ID:           models.NewActivityID(),
			SpecTaskID:   task.ID,
			ActivityType: models.ActivitySessionCreated,
			Message:      "session created",
			Timestamp:    time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := db.AppendActivity(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := db.ListActivity(task.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("limit ignored, got %d entries", len(entries))
	}
}
