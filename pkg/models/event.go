package models

import "time"

// CoordinationEventType classifies messages exchanged between work sessions.
type CoordinationEventType string

const (
	CoordinationEventHandoff      CoordinationEventType = "handoff"
	CoordinationEventBlocking     CoordinationEventType = "blocking"
	CoordinationEventNotification CoordinationEventType = "notification"
	CoordinationEventRequest      CoordinationEventType = "request"
	CoordinationEventResponse     CoordinationEventType = "response"
	CoordinationEventBroadcast    CoordinationEventType = "broadcast"
	CoordinationEventCompletion   CoordinationEventType = "completion"
	CoordinationEventSpawn        CoordinationEventType = "spawn"
)

// Valid returns true if the event type is a known value.
func (t CoordinationEventType) Valid() bool {
	switch t {
	case CoordinationEventHandoff, CoordinationEventBlocking,
		CoordinationEventNotification, CoordinationEventRequest,
		CoordinationEventResponse, CoordinationEventBroadcast,
		CoordinationEventCompletion, CoordinationEventSpawn:
		return true
	default:
		return false
	}
}

// CoordinationEvent is an immutable record of inter-session coordination.
// Events are append-only: acknowledgment is the only permitted mutation and
// may be applied at most once.
type CoordinationEvent struct {
	ID            string                `json:"id"`
	SpecTaskID    string                `json:"spec_task_id"`
	FromSessionID string                `json:"from_session_id"`
	// ToSessionID empty means broadcast to every session under the task.
	ToSessionID string                 `json:"to_session_id,omitempty"`
	Type        CoordinationEventType  `json:"event_type"`
	Message     string                 `json:"message,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	Response       string     `json:"response,omitempty"`
}

// IsBroadcast returns true if the event has no specific recipient.
func (e *CoordinationEvent) IsBroadcast() bool {
	return e.ToSessionID == ""
}
