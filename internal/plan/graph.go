package plan

import (
	"fmt"
	"sort"

	"github.com/specdriven/specflow/pkg/models"
)

// NextReady returns every pending task whose dependency set is fully
// completed, in ascending index order. Tasks already assigned, in progress,
// blocked, or completed are never returned.
func NextReady(tasks []*models.ImplementationTask) []*models.ImplementationTask {
	byIndex := indexMap(tasks)

	var ready []*models.ImplementationTask
	for _, t := range tasks {
		if t.Status != models.ImplementationStatusPending {
			continue
		}
		if depsCompleted(t, byIndex) {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Index < ready[j].Index })
	return ready
}

// ValidateCompletion checks the DAG invariant before marking the task at
// completedIndex completed: no downstream dependent may already be in
// progress while one of its upstream dependencies is still incomplete. A
// violation means a caller bypassed NextReady and is a consistency bug, so
// it is reported and never repaired.
func ValidateCompletion(tasks []*models.ImplementationTask, completedIndex int) error {
	byIndex := indexMap(tasks)
	if _, ok := byIndex[completedIndex]; !ok {
		return fmt.Errorf("%w: task index %d", models.ErrNotFound, completedIndex)
	}

	for _, t := range tasks {
		if t.Status != models.ImplementationStatusInProgress {
			continue
		}
		for _, d := range t.Dependencies {
			dep, ok := byIndex[d]
			if !ok {
				return fmt.Errorf("%w: task %d references nonexistent dependency %d", models.ErrDependencyViolation, t.Index, d)
			}
			if !dep.IsCompleted() && dep.Index != completedIndex {
				return fmt.Errorf("%w: task %d is in progress but dependency %d is %s",
					models.ErrDependencyViolation, t.Index, dep.Index, dep.Status)
			}
		}
	}
	return nil
}

// Progress returns the completed fraction of the plan, 0.0 to 1.0.
func Progress(tasks []*models.ImplementationTask) float64 {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.IsCompleted() {
			done++
		}
	}
	return float64(done) / float64(len(tasks))
}

// AllCompleted reports whether every task in the plan is completed.
func AllCompleted(tasks []*models.ImplementationTask) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.IsCompleted() {
			return false
		}
	}
	return true
}

func depsCompleted(t *models.ImplementationTask, byIndex map[int]*models.ImplementationTask) bool {
	for _, d := range t.Dependencies {
		dep, ok := byIndex[d]
		if !ok || !dep.IsCompleted() {
			return false
		}
	}
	return true
}

func indexMap(tasks []*models.ImplementationTask) map[int]*models.ImplementationTask {
	m := make(map[int]*models.ImplementationTask, len(tasks))
	for _, t := range tasks {
		m[t.Index] = t
	}
	return m
}

// cycleExists runs a depth-first search with coloring over the dependency
// edges to detect back edges.
func cycleExists(tasks []*models.ImplementationTask) bool {
	edges := make(map[int][]int, len(tasks))
	for _, t := range tasks {
		edges[t.Index] = t.Dependencies
	}

	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[int]int, len(tasks))

	var visit func(i int) bool
	visit = func(i int) bool {
		colors[i] = 1
		for _, d := range edges[i] {
			switch colors[d] {
			case 1:
				return true
			case 0:
				if visit(d) {
					return true
				}
			}
		}
		colors[i] = 2
		return false
	}

	for i := range edges {
		if colors[i] == 0 && visit(i) {
			return true
		}
	}
	return false
}
