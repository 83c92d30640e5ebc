package models

import "time"

// WorkSessionStatus is the lifecycle state of a work session.
type WorkSessionStatus string

const (
	WorkSessionStatusPending   WorkSessionStatus = "pending"
	WorkSessionStatusActive    WorkSessionStatus = "active"
	WorkSessionStatusCompleted WorkSessionStatus = "completed"
	WorkSessionStatusFailed    WorkSessionStatus = "failed"
	WorkSessionStatusCancelled WorkSessionStatus = "cancelled"
	WorkSessionStatusBlocked   WorkSessionStatus = "blocked"
)

// workSessionTransitions is the closed transition table for session statuses.
// blocked -> active is the only recovery edge; everything else moves forward.
var workSessionTransitions = map[WorkSessionStatus][]WorkSessionStatus{
	WorkSessionStatusPending:   {WorkSessionStatusActive},
	WorkSessionStatusActive:    {WorkSessionStatusCompleted, WorkSessionStatusFailed, WorkSessionStatusCancelled, WorkSessionStatusBlocked},
	WorkSessionStatusBlocked:   {WorkSessionStatusActive},
	WorkSessionStatusCompleted: nil,
	WorkSessionStatusFailed:    nil,
	WorkSessionStatusCancelled: nil,
}

// Valid returns true if the status is a known value.
func (s WorkSessionStatus) Valid() bool {
	_, ok := workSessionTransitions[s]
	return ok
}

// Terminal returns true if no further transitions are allowed.
func (s WorkSessionStatus) Terminal() bool {
	targets, ok := workSessionTransitions[s]
	return ok && len(targets) == 0
}

// CanTransition reports whether the status may move to next.
func (s WorkSessionStatus) CanTransition(next WorkSessionStatus) bool {
	for _, t := range workSessionTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// WorkSession is a unit of concurrent execution under a spec task. Sessions
// form a spawn forest: the structural parent is ParentWorkSessionID, while
// SpawnedBySessionID records the causal origin. The two may differ and are
// never inferred from each other.
type WorkSession struct {
	ID         string `json:"id"`
	SpecTaskID string `json:"spec_task_id"`

	// AgentSessionID binds the work session 1:1 to the underlying agent
	// conversation.
	AgentSessionID string `json:"agent_session_id"`
	// AgentThreadID optionally binds the session to a thread inside an
	// external interactive agent process.
	AgentThreadID string `json:"agent_thread_id,omitempty"`

	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Phase       Phase             `json:"phase"`
	Status      WorkSessionStatus `json:"status"`

	// Implementation context, set when the session is bound to a task
	// parsed from the implementation plan.
	ImplementationTaskID    string `json:"implementation_task_id,omitempty"`
	ImplementationTaskIndex int    `json:"implementation_task_index,omitempty"`
	ImplementationTaskTitle string `json:"implementation_task_title,omitempty"`

	ParentWorkSessionID string `json:"parent_work_session_id,omitempty"`
	SpawnedBySessionID  string `json:"spawned_by_session_id,omitempty"`

	AgentConfig       []byte `json:"agent_config,omitempty"`
	EnvironmentConfig []byte `json:"environment_config,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActive returns true if the session is currently executing.
func (s *WorkSession) IsActive() bool {
	return s.Status == WorkSessionStatusActive
}

// HasParent returns true if the session has a structural parent.
func (s *WorkSession) HasParent() bool {
	return s.ParentWorkSessionID != ""
}

// WasSpawned returns true if another session caused this one to exist.
func (s *WorkSession) WasSpawned() bool {
	return s.SpawnedBySessionID != ""
}

// CanSpawn reports whether the session is allowed to spawn children.
// Only active sessions spawn.
func (s *WorkSession) CanSpawn() bool {
	return s.Status == WorkSessionStatusActive
}
