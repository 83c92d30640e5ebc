package models

import "time"

// ActivityType classifies entries in the audit trail.
type ActivityType string

const (
	ActivitySessionCreated    ActivityType = "session_created"
	ActivitySessionCompleted  ActivityType = "session_completed"
	ActivitySessionSpawned    ActivityType = "session_spawned"
	ActivityTaskCompleted     ActivityType = "task_completed"
	ActivityAgentConnected    ActivityType = "agent_connected"
	ActivityAgentDisconnected ActivityType = "agent_disconnected"
	ActivityPhaseTransition   ActivityType = "phase_transition"
)

// ActivityLogEntry is a write-once audit record keyed by spec task and
// optionally by work session.
type ActivityLogEntry struct {
	ID            string                 `json:"id"`
	SpecTaskID    string                 `json:"spec_task_id"`
	WorkSessionID string                 `json:"work_session_id,omitempty"`
	ActivityType  ActivityType           `json:"activity_type"`
	Message       string                 `json:"message"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}
