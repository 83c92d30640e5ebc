package models

import (
	"strings"

	"github.com/google/uuid"
)

// Entity IDs are prefixed UUIDs so a bare ID in a log line identifies its
// table at a glance.
const (
	specTaskIDPrefix     = "spt_"
	workSessionIDPrefix  = "stws_"
	agentSessionIDPrefix = "stas_"
	implTaskIDPrefix     = "stit_"
	eventIDPrefix        = "stev_"
	activityIDPrefix     = "sta_"
)

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSpecTaskID generates a spec task identifier.
func NewSpecTaskID() string { return newID(specTaskIDPrefix) }

// NewWorkSessionID generates a work session identifier.
func NewWorkSessionID() string { return newID(workSessionIDPrefix) }

// NewAgentSessionID generates an agent session identifier, binding a work
// session to its underlying agent conversation.
func NewAgentSessionID() string { return newID(agentSessionIDPrefix) }

// NewImplementationTaskID generates an implementation task identifier.
func NewImplementationTaskID() string { return newID(implTaskIDPrefix) }

// NewCoordinationEventID generates a coordination event identifier.
func NewCoordinationEventID() string { return newID(eventIDPrefix) }

// NewActivityID generates an activity log identifier.
func NewActivityID() string { return newID(activityIDPrefix) }
