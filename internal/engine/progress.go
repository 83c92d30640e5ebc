package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specdriven/specflow/internal/plan"
	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

// Progress is the derived view of one spec task's implementation state.
type Progress struct {
	Task           *models.SpecTask
	TotalTasks     int
	CompletedTasks int
	Fraction       float64
	Sessions       []*models.WorkSession
}

// Progress computes the implementation progress of a spec task.
func (e *Engine) Progress(specTaskID string) (*Progress, error) {
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.store.ListImplementationTasks(specTaskID)
	if err != nil {
		return nil, err
	}
	sessions, err := e.store.ListWorkSessions(specTaskID)
	if err != nil {
		return nil, err
	}

	completed := 0
	for _, t := range tasks {
		if t.IsCompleted() {
			completed++
		}
	}
	return &Progress{
		Task:           task,
		TotalTasks:     len(tasks),
		CompletedTasks: completed,
		Fraction:       plan.Progress(tasks),
		Sessions:       sessions,
	}, nil
}

// Overview lists spec tasks matching the filters.
func (e *Engine) Overview(f state.SpecTaskFilters) ([]*models.SpecTask, error) {
	return e.store.ListSpecTasks(f)
}

// Activity returns a spec task's audit trail, newest first.
func (e *Engine) Activity(specTaskID string, limit int) ([]*models.ActivityLogEntry, error) {
	return e.store.ListActivity(specTaskID, limit)
}

// UpdateSessionStatus transitions a work session and advances the owning
// spec task where the session lifecycle implies it: the first active session
// moves the task from implementation_start to implementation_in_progress,
// and completing the last implementation task moves it to validation.
func (e *Engine) UpdateSessionStatus(sessionID string, next models.WorkSessionStatus) (*models.WorkSession, error) {
	s, err := e.tree.UpdateStatus(sessionID, next)
	if err != nil {
		return s, err
	}

	task, err := e.store.GetSpecTask(s.SpecTaskID)
	if err != nil {
		return s, err
	}

	switch next {
	case models.WorkSessionStatusActive:
		if task.Status == models.SpecTaskStatusImplementationStart {
			if err := e.transition(task, models.SpecTaskStatusImplementation); err != nil {
				if !errors.Is(err, models.ErrInvalidTransition) {
					return s, err
				}
				// A concurrent activation advanced the task first; that
				// is the outcome we wanted.
				e.log.Debug().Err(err).Str("spec_task_id", task.ID).Msg("task already advanced")
			}
		}
	case models.WorkSessionStatusCompleted:
		if err := e.detectCompletion(task); err != nil {
			return s, err
		}
	}
	return s, nil
}

// detectCompletion moves a task whose plan is fully completed into
// validation.
func (e *Engine) detectCompletion(task *models.SpecTask) error {
	if task.Status != models.SpecTaskStatusImplementation {
		return nil
	}
	tasks, err := e.store.ListImplementationTasks(task.ID)
	if err != nil {
		return err
	}
	if !plan.AllCompleted(tasks) {
		return nil
	}
	if err := e.transition(task, models.SpecTaskStatusValidation); err != nil {
		return err
	}
	e.recordActivity(task.ID, models.ActivityTaskCompleted,
		fmt.Sprintf("all %d implementation tasks completed, entering validation", len(tasks)))
	return nil
}

// CompleteValidation records the final sign-off and completes the task.
func (e *Engine) CompleteValidation(specTaskID, approvedBy string) (*models.SpecTask, error) {
	task, err := e.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	if err := e.transition(task, models.SpecTaskStatusCompleted); err != nil {
		return nil, err
	}
	now := e.now()
	task.ImplApprovedBy = approvedBy
	task.ImplApprovedAt = &now
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := e.store.UpdateSpecTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Run drives the engine's periodic work until the context is cancelled:
// planning tasks awaiting spec generation, sweeping agent liveness, and
// detecting plan completion for in-flight tasks.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	now := e.now()
	if e.monitor != nil {
		if _, err := e.monitor.Sweep(now); err != nil {
			e.log.Error().Err(err).Msg("liveness sweep failed")
		}
	}

	e.driveGeneration(ctx)

	inFlight, err := e.store.ListSpecTasks(state.SpecTaskFilters{Status: models.SpecTaskStatusImplementation})
	if err != nil {
		e.log.Error().Err(err).Msg("list in-flight tasks failed")
		return
	}
	for _, task := range inFlight {
		if err := e.detectCompletion(task); err != nil {
			e.log.Error().Err(err).Str("spec_task_id", task.ID).Msg("completion check failed")
		}
	}
}

// driveGeneration runs a planning pass for every task awaiting spec
// generation, including revision rounds after requested changes.
func (e *Engine) driveGeneration(ctx context.Context) {
	if e.planner == nil {
		return
	}
	for _, status := range []models.SpecTaskStatus{
		models.SpecTaskStatusSpecGeneration,
		models.SpecTaskStatusSpecChangesRequested,
	} {
		waiting, err := e.store.ListSpecTasks(state.SpecTaskFilters{Status: status})
		if err != nil {
			e.log.Error().Err(err).Msg("list waiting tasks failed")
			return
		}
		for _, task := range waiting {
			if ctx.Err() != nil {
				return
			}
			if _, err := e.GenerateSpecs(ctx, task.ID); err != nil {
				e.log.Error().Err(err).Str("spec_task_id", task.ID).Msg("spec generation failed")
			}
		}
	}
}
