package plan

import (
	"errors"
	"testing"

	"github.com/specdriven/specflow/pkg/models"
)

func mkTasks(deps ...[]int) []*models.ImplementationTask {
	tasks := make([]*models.ImplementationTask, len(deps))
	for i, d := range deps {
		tasks[i] = &models.ImplementationTask{
			ID:     models.NewImplementationTaskID(),
			Index:  i,
			Status: models.ImplementationStatusPending,
		}
		if len(d) > 0 {
			tasks[i].Dependencies = d
		}
	}
	return tasks
}

func TestNextReadyFanOut(t *testing.T) {
	// Tasks: 0 with no deps, 1 and 2 depending on 0.
	tasks := mkTasks(nil, []int{0}, []int{0})

	ready := NextReady(tasks)
	if len(ready) != 1 || ready[0].Index != 0 {
		t.Fatalf("initial ready set = %v, want [0]", indices(ready))
	}

	tasks[0].Status = models.ImplementationStatusCompleted
	ready = NextReady(tasks)
	if len(ready) != 2 || ready[0].Index != 1 || ready[1].Index != 2 {
		t.Fatalf("ready set after completing 0 = %v, want [1 2]", indices(ready))
	}
}

func TestNextReadySkipsNonPending(t *testing.T) {
	tasks := mkTasks(nil, nil)
	tasks[0].Status = models.ImplementationStatusAssigned
	ready := NextReady(tasks)
	if len(ready) != 1 || ready[0].Index != 1 {
		t.Fatalf("ready set = %v, want [1]", indices(ready))
	}
}

func TestNextReadyDiamond(t *testing.T) {
	// 0 -> {1, 2} -> 3
	tasks := mkTasks(nil, []int{0}, []int{0}, []int{1, 2})
	tasks[0].Status = models.ImplementationStatusCompleted
	tasks[1].Status = models.ImplementationStatusCompleted

	ready := NextReady(tasks)
	if len(ready) != 1 || ready[0].Index != 2 {
		t.Fatalf("ready set = %v, want [2] (3 still blocked on 2)", indices(ready))
	}
}

func TestValidateCompletion(t *testing.T) {
	tasks := mkTasks(nil, []int{0})
	tasks[0].Status = models.ImplementationStatusInProgress
	tasks[1].Status = models.ImplementationStatusPending

	if err := ValidateCompletion(tasks, 0); err != nil {
		t.Errorf("completing task 0 should be fine: %v", err)
	}

	// Downstream task running while its upstream dependency is incomplete.
	tasks[1].Status = models.ImplementationStatusInProgress
	tasks[0].Status = models.ImplementationStatusPending
	err := ValidateCompletion(tasks, 1)
	if !errors.Is(err, models.ErrDependencyViolation) {
		t.Errorf("expected ErrDependencyViolation, got %v", err)
	}

	// Completing the upstream dependency itself is allowed.
	if err := ValidateCompletion(tasks, 0); err != nil {
		t.Errorf("completing the lagging dependency should be allowed: %v", err)
	}
}

func TestValidateCompletionUnknownIndex(t *testing.T) {
	tasks := mkTasks(nil)
	if err := ValidateCompletion(tasks, 5); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProgressAndAllCompleted(t *testing.T) {
	tasks := mkTasks(nil, nil)
	if Progress(tasks) != 0 {
		t.Error("fresh plan progress should be 0")
	}
	tasks[0].Status = models.ImplementationStatusCompleted
	if got := Progress(tasks); got != 0.5 {
		t.Errorf("progress = %v, want 0.5", got)
	}
	if AllCompleted(tasks) {
		t.Error("plan with pending tasks is not all completed")
	}
	tasks[1].Status = models.ImplementationStatusCompleted
	if !AllCompleted(tasks) {
		t.Error("plan with every task completed should report done")
	}
	if AllCompleted(nil) {
		t.Error("empty plan never counts as completed")
	}
}

func indices(tasks []*models.ImplementationTask) []int {
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.Index
	}
	return out
}
