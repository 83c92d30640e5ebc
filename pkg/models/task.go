package models

import "time"

// ImplementationStatus is the lifecycle state of an implementation task.
type ImplementationStatus string

const (
	ImplementationStatusPending    ImplementationStatus = "pending"
	ImplementationStatusAssigned   ImplementationStatus = "assigned"
	ImplementationStatusInProgress ImplementationStatus = "in_progress"
	ImplementationStatusCompleted  ImplementationStatus = "completed"
	ImplementationStatusBlocked    ImplementationStatus = "blocked"
)

// implementationTransitions is the closed transition table for
// implementation task statuses.
var implementationTransitions = map[ImplementationStatus][]ImplementationStatus{
	ImplementationStatusPending:    {ImplementationStatusAssigned, ImplementationStatusBlocked},
	ImplementationStatusAssigned:   {ImplementationStatusInProgress, ImplementationStatusBlocked, ImplementationStatusCompleted},
	ImplementationStatusInProgress: {ImplementationStatusCompleted, ImplementationStatusBlocked},
	ImplementationStatusBlocked:    {ImplementationStatusPending, ImplementationStatusAssigned},
	ImplementationStatusCompleted:  nil,
}

// Valid returns true if the status is a known value.
func (s ImplementationStatus) Valid() bool {
	_, ok := implementationTransitions[s]
	return ok
}

// CanTransition reports whether the status may move to next.
func (s ImplementationStatus) CanTransition(next ImplementationStatus) bool {
	for _, t := range implementationTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// EstimatedEffort is a coarse size class for an implementation task.
type EstimatedEffort string

const (
	EffortSmall  EstimatedEffort = "small"
	EffortMedium EstimatedEffort = "medium"
	EffortLarge  EstimatedEffort = "large"
)

// ImplementationTask is a discrete unit of work parsed from the approved
// implementation plan. Index is the order of appearance in the plan and is
// what dependency references point at.
type ImplementationTask struct {
	ID         string `json:"id"`
	SpecTaskID string `json:"spec_task_id"`

	Index              int             `json:"index"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	AcceptanceCriteria string          `json:"acceptance_criteria,omitempty"`
	EstimatedEffort    EstimatedEffort `json:"estimated_effort"`

	// Dependencies lists the indices of tasks that must complete before
	// this one may start.
	Dependencies []int `json:"dependencies,omitempty"`

	Status ImplementationStatus `json:"status"`
	// AssignedWorkSessionID binds the task to exactly one work session
	// once assigned. Assignment is exclusive: the first claimant wins.
	AssignedWorkSessionID string `json:"assigned_work_session_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsCompleted returns true if the task has finished.
func (t *ImplementationTask) IsCompleted() bool {
	return t.Status == ImplementationStatusCompleted
}

// IsAssigned returns true if the task is bound to a work session.
func (t *ImplementationTask) IsAssigned() bool {
	return t.Status == ImplementationStatusAssigned && t.AssignedWorkSessionID != ""
}

// DependsOn reports whether the task lists index among its dependencies.
func (t *ImplementationTask) DependsOn(index int) bool {
	for _, d := range t.Dependencies {
		if d == index {
			return true
		}
	}
	return false
}
