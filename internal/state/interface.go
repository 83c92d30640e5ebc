// Package state provides SQLite-backed persistence for the orchestration
// engine.
package state

import (
	"io"
	"time"

	"github.com/specdriven/specflow/pkg/models"
)

// SpecTaskStore handles spec task persistence.
type SpecTaskStore interface {
	CreateSpecTask(t *models.SpecTask) error
	GetSpecTask(id string) (*models.SpecTask, error)
	UpdateSpecTask(t *models.SpecTask) error
	CompareAndSwapSpecTaskStatus(id string, expected, next models.SpecTaskStatus, updatedAt string) (bool, error)
	ListSpecTasks(f SpecTaskFilters) ([]*models.SpecTask, error)
}

// WorkSessionStore handles work session persistence.
type WorkSessionStore interface {
	CreateWorkSession(s *models.WorkSession) error
	GetWorkSession(id string) (*models.WorkSession, error)
	UpdateWorkSession(s *models.WorkSession) error
	CompareAndSwapWorkSessionStatus(id string, expected, next models.WorkSessionStatus, updatedAt string) (bool, error)
	ListWorkSessions(specTaskID string) ([]*models.WorkSession, error)
	ListChildWorkSessions(parentID string) ([]*models.WorkSession, error)
}

// ImplementationTaskStore handles plan task persistence. Claim is the
// atomic, exclusive assignment primitive.
type ImplementationTaskStore interface {
	CreateImplementationTasks(tasks []*models.ImplementationTask) error
	DeleteImplementationTasks(specTaskID string) error
	GetImplementationTask(id string) (*models.ImplementationTask, error)
	UpdateImplementationTask(t *models.ImplementationTask) error
	ListImplementationTasks(specTaskID string) ([]*models.ImplementationTask, error)
	ClaimImplementationTask(taskID, workSessionID string) error
}

// CoordinationEventStore handles the append-only event log.
type CoordinationEventStore interface {
	AppendCoordinationEvent(e *models.CoordinationEvent) error
	GetCoordinationEvent(id string) (*models.CoordinationEvent, error)
	AcknowledgeCoordinationEvent(id, response string, at time.Time) error
	ListCoordinationEvents(specTaskID string, f EventFilters) ([]*models.CoordinationEvent, error)
}

// ActivityStore handles the write-once audit trail.
type ActivityStore interface {
	AppendActivity(e *models.ActivityLogEntry) error
	ListActivity(specTaskID string, limit int) ([]*models.ActivityLogEntry, error)
}

// HeartbeatStore handles raw liveness timestamps.
type HeartbeatStore interface {
	RegisterAgent(agentID, specTaskID string, createdAt time.Time) error
	RecordHeartbeat(agentID string, at time.Time) error
	GetHeartbeat(agentID string) (*HeartbeatRecord, error)
	ListHeartbeats() ([]*HeartbeatRecord, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the composed persistence interface the engine works against,
// allowing any backend without depending on the concrete SQLite
// implementation.
type Store interface {
	io.Closer
	Migrator
	SpecTaskStore
	WorkSessionStore
	ImplementationTaskStore
	CoordinationEventStore
	ActivityStore
	HeartbeatStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store                   = (*DB)(nil)
	_ SpecTaskStore           = (*DB)(nil)
	_ WorkSessionStore        = (*DB)(nil)
	_ ImplementationTaskStore = (*DB)(nil)
	_ CoordinationEventStore  = (*DB)(nil)
	_ ActivityStore           = (*DB)(nil)
	_ HeartbeatStore          = (*DB)(nil)
)
