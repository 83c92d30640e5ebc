package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration engine. Callers classify failures
// with errors.Is; wrapped messages carry the specifics.
var (
	// ErrValidation indicates malformed input, such as an empty prompt.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an operation that is not legal in the
	// entity's current state.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrInvalidTransition indicates a status change outside the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminalState indicates a mutation attempted on a completed or
	// cancelled task.
	ErrTerminalState = errors.New("task is in a terminal state")
	// ErrAlreadyAssigned indicates a lost race for task assignment.
	// Callers should pick the next ready task rather than retry.
	ErrAlreadyAssigned = errors.New("task already assigned to another session")
	// ErrAlreadyAcknowledged indicates a repeated acknowledgment of a
	// coordination event. The first acknowledgment stands.
	ErrAlreadyAcknowledged = errors.New("event already acknowledged")
	// ErrDependencyViolation indicates the task DAG invariant was broken.
	// This is a consistency bug, never corrected silently.
	ErrDependencyViolation = errors.New("dependency ordering violated")
	// ErrParentNotActive indicates a spawn from a non-active session.
	ErrParentNotActive = errors.New("parent work session is not active")
	// ErrPlanParse indicates the implementation plan markdown could not
	// be parsed into tasks.
	ErrPlanParse = errors.New("implementation plan parse failed")
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// IsRaceLost reports whether err is one of the expected lost-race errors.
// These are normal under concurrency: the caller should re-evaluate and move
// on rather than treat them as failures.
func IsRaceLost(err error) bool {
	return errors.Is(err, ErrAlreadyAssigned) || errors.Is(err, ErrAlreadyAcknowledged)
}

// HandoffError wraps a git failure during spec document handoff. It carries
// partial-progress metadata so a retry can resume without duplicating
// commits: everything in CommittedFiles is already in git at CommitHash.
type HandoffError struct {
	SpecTaskID     string
	Stage          string
	CommittedFiles []string
	CommitHash     string
	Err            error
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("handoff failed for task %s at %s (%d files committed): %v",
		e.SpecTaskID, e.Stage, len(e.CommittedFiles), e.Err)
}

func (e *HandoffError) Unwrap() error {
	return e.Err
}
