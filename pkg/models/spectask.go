// Package models defines the core entities of the spec-driven workflow:
// spec tasks, implementation tasks, work sessions, coordination events,
// and the status enums and transition tables that govern them.
package models

import "time"

// Priority classifies how urgent a spec task is.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Phase represents the workflow phase a spec task or work session is in.
type Phase string

const (
	PhasePlanning       Phase = "planning"
	PhaseImplementation Phase = "implementation"
	PhaseValidation     Phase = "validation"
)

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	switch p {
	case PhasePlanning, PhaseImplementation, PhaseValidation:
		return true
	default:
		return false
	}
}

// order maps phases to their position in the workflow. Sessions may run in
// the task's current phase or an earlier one, never ahead of it.
func (p Phase) order() int {
	switch p {
	case PhasePlanning:
		return 0
	case PhaseImplementation:
		return 1
	case PhaseValidation:
		return 2
	default:
		return -1
	}
}

// AtOrBefore reports whether p is the same phase as other or an earlier one.
func (p Phase) AtOrBefore(other Phase) bool {
	return p.order() >= 0 && p.order() <= other.order()
}

// SpecTaskStatus is the workflow state of a spec task.
type SpecTaskStatus string

const (
	SpecTaskStatusSpecGeneration       SpecTaskStatus = "spec_generation"
	SpecTaskStatusSpecReview           SpecTaskStatus = "spec_review"
	SpecTaskStatusSpecApproved         SpecTaskStatus = "spec_approved"
	SpecTaskStatusSpecChangesRequested SpecTaskStatus = "spec_changes_requested"
	SpecTaskStatusImplementationStart  SpecTaskStatus = "implementation_start"
	SpecTaskStatusImplementation       SpecTaskStatus = "implementation_in_progress"
	SpecTaskStatusValidation           SpecTaskStatus = "validation"
	SpecTaskStatusCompleted            SpecTaskStatus = "completed"
	SpecTaskStatusFailed               SpecTaskStatus = "failed"
	SpecTaskStatusCancelled            SpecTaskStatus = "cancelled"
)

// specTaskTransitions is the closed transition table for spec task statuses.
// Every mutation is validated against this table; status is never inferred
// from string comparison elsewhere.
var specTaskTransitions = map[SpecTaskStatus][]SpecTaskStatus{
	SpecTaskStatusSpecGeneration:       {SpecTaskStatusSpecReview, SpecTaskStatusSpecApproved, SpecTaskStatusFailed, SpecTaskStatusCancelled},
	SpecTaskStatusSpecReview:           {SpecTaskStatusSpecApproved, SpecTaskStatusSpecChangesRequested, SpecTaskStatusFailed, SpecTaskStatusCancelled},
	SpecTaskStatusSpecChangesRequested: {SpecTaskStatusSpecGeneration, SpecTaskStatusCancelled},
	SpecTaskStatusSpecApproved:         {SpecTaskStatusImplementationStart, SpecTaskStatusFailed, SpecTaskStatusCancelled},
	SpecTaskStatusImplementationStart:  {SpecTaskStatusImplementation, SpecTaskStatusFailed, SpecTaskStatusCancelled},
	SpecTaskStatusImplementation:       {SpecTaskStatusValidation, SpecTaskStatusFailed, SpecTaskStatusCancelled},
	SpecTaskStatusValidation:           {SpecTaskStatusCompleted, SpecTaskStatusImplementation, SpecTaskStatusFailed, SpecTaskStatusCancelled},
	SpecTaskStatusCompleted:            nil,
	SpecTaskStatusFailed:               nil,
	SpecTaskStatusCancelled:            nil,
}

// Valid returns true if the status is a known value.
func (s SpecTaskStatus) Valid() bool {
	_, ok := specTaskTransitions[s]
	return ok
}

// Terminal returns true if no further transitions are allowed.
func (s SpecTaskStatus) Terminal() bool {
	targets, ok := specTaskTransitions[s]
	return ok && len(targets) == 0
}

// CanTransition reports whether the status may move to next.
func (s SpecTaskStatus) CanTransition(next SpecTaskStatus) bool {
	for _, t := range specTaskTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Phase returns the workflow phase implied by the status.
func (s SpecTaskStatus) Phase() Phase {
	switch s {
	case SpecTaskStatusSpecGeneration, SpecTaskStatusSpecReview,
		SpecTaskStatusSpecApproved, SpecTaskStatusSpecChangesRequested:
		return PhasePlanning
	case SpecTaskStatusImplementationStart, SpecTaskStatusImplementation:
		return PhaseImplementation
	default:
		return PhaseValidation
	}
}

// HandoffState tracks the git handoff of approved spec documents.
type HandoffState string

const (
	HandoffStatePending    HandoffState = "pending_handoff"
	HandoffStateCommitting HandoffState = "committing"
	HandoffStateHandedOff  HandoffState = "handed_off"
	HandoffStateFailed     HandoffState = "handoff_failed"
)

// SpecTask is the root aggregate of the spec-driven workflow. One task tracks
// a single change request from free-text prompt through approved specs to
// implementation and validation.
type SpecTask struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Priority    Priority       `json:"priority"`
	Status      SpecTaskStatus `json:"status"`
	Phase       Phase          `json:"phase"`

	// Human-readable artifacts, all markdown.
	OriginalPrompt     string `json:"original_prompt"`
	RequirementsSpec   string `json:"requirements_spec,omitempty"`
	TechnicalDesign    string `json:"technical_design,omitempty"`
	ImplementationPlan string `json:"implementation_plan,omitempty"`

	// ExternalAgentID identifies the single external agent bound to this
	// task. It persists across the whole workflow, spanning every session.
	ExternalAgentID string `json:"external_agent_id,omitempty"`

	// Agent sessions per phase (same agent, different conversations).
	PlanningSessionID       string `json:"planning_session_id,omitempty"`
	ImplementationSessionID string `json:"implementation_session_id,omitempty"`

	// Approval tracking.
	SpecApprovedBy    string     `json:"spec_approved_by,omitempty"`
	SpecApprovedAt    *time.Time `json:"spec_approved_at,omitempty"`
	ImplApprovedBy    string     `json:"impl_approved_by,omitempty"`
	ImplApprovedAt    *time.Time `json:"impl_approved_at,omitempty"`
	SpecRevisionCount int        `json:"spec_revision_count"`
	RequestedChanges  []string   `json:"requested_changes,omitempty"`

	// Git handoff tracking.
	BranchName     string       `json:"branch_name,omitempty"`
	LastCommitHash string       `json:"last_commit_hash,omitempty"`
	PullRequestURL string       `json:"pull_request_url,omitempty"`
	Pushed         bool         `json:"pushed"`
	Merged         bool         `json:"merged"`
	HandoffState   HandoffState `json:"handoff_state,omitempty"`

	// YoloMode skips the human review pause: spec_generation transitions
	// straight to spec_approved.
	YoloMode bool `json:"yolo_mode"`

	ProjectPath     string `json:"project_path,omitempty"`
	WorkspaceConfig []byte `json:"workspace_config,omitempty"`

	Archived    bool       `json:"archived"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal returns true if the task can no longer be mutated.
func (t *SpecTask) Terminal() bool {
	return t.Status.Terminal()
}

// InReview returns true if the task is waiting for a human approval decision.
func (t *SpecTask) InReview() bool {
	return t.Status == SpecTaskStatusSpecReview
}

// ApprovalDecision is a reviewer's verdict on generated spec documents.
type ApprovalDecision string

const (
	ApprovalDecisionApprove        ApprovalDecision = "approve"
	ApprovalDecisionRequestChanges ApprovalDecision = "request_changes"
)

// Valid returns true if the decision is a known value.
func (d ApprovalDecision) Valid() bool {
	return d == ApprovalDecisionApprove || d == ApprovalDecisionRequestChanges
}
