// Package bus implements the coordination event bus: an append-only,
// acknowledge-once message log shared by the work sessions of a spec task.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

// Bus persists coordination events and notifies the in-process subscriber.
// The store is the source of truth; the emitter only accelerates delivery.
type Bus struct {
	store   state.CoordinationEventStore
	emitter *Emitter

	mu        sync.Mutex
	lastStamp map[string]time.Time // per-sender publish-order floor
	now       func() time.Time
}

// New creates a Bus over the given store. bufferSize sizes the subscriber
// channel.
func New(store state.CoordinationEventStore, bufferSize int) *Bus {
	return &Bus{
		store:     store,
		emitter:   NewEmitter(bufferSize),
		lastStamp: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Publish appends an event to the log. The bus assigns the ID and the
// timestamp; timestamps are strictly monotonic per sender so any reader
// observes one session's events in publish order. An empty ToSessionID
// denotes a broadcast to every session under the spec task.
func (b *Bus) Publish(e *models.CoordinationEvent) error {
	if e.SpecTaskID == "" {
		return fmt.Errorf("spec task id is required: %w", models.ErrValidation)
	}
	if e.FromSessionID == "" {
		return fmt.Errorf("from session id is required: %w", models.ErrValidation)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q: %w", e.Type, models.ErrValidation)
	}

	if e.ID == "" {
		e.ID = models.NewCoordinationEventID()
	}

	b.mu.Lock()
	ts := b.now()
	if last, ok := b.lastStamp[e.FromSessionID]; ok && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	b.lastStamp[e.FromSessionID] = ts
	b.mu.Unlock()
	e.Timestamp = ts

	if err := b.store.AppendCoordinationEvent(e); err != nil {
		return err
	}
	b.emitter.Emit(e)
	return nil
}

// Acknowledge records the response on an event. A second acknowledgment of
// the same event fails with AlreadyAcknowledgedError and leaves the first
// response intact.
func (b *Bus) Acknowledge(eventID, response string) error {
	return b.store.AcknowledgeCoordinationEvent(eventID, response, b.now())
}

// Query returns a spec task's events ordered by timestamp ascending.
func (b *Bus) Query(specTaskID string, f state.EventFilters) ([]*models.CoordinationEvent, error) {
	return b.store.ListCoordinationEvents(specTaskID, f)
}

// Get retrieves a single event by ID.
func (b *Bus) Get(eventID string) (*models.CoordinationEvent, error) {
	return b.store.GetCoordinationEvent(eventID)
}

// Subscribe returns the channel live events are delivered on.
func (b *Bus) Subscribe() <-chan *models.CoordinationEvent {
	return b.emitter.Events()
}

// DroppedCount reports how many live notifications were dropped because the
// subscriber fell behind.
func (b *Bus) DroppedCount() uint64 {
	return b.emitter.DroppedCount()
}

// Close shuts down the subscriber channel.
func (b *Bus) Close() {
	b.emitter.Close()
}
