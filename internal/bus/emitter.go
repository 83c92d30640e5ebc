package bus

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/specdriven/specflow/pkg/models"
)

// Emitter fans persisted coordination events out to an in-process
// subscriber over a buffered channel. Delivery is best-effort: the
// durable record lives in the store, so a slow subscriber costs dropped
// notifications, never dropped history.
type Emitter struct {
	events       chan *models.CoordinationEvent
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan *models.CoordinationEvent, bufferSize),
	}
}

// Emit sends an event to the subscriber channel. If the channel is full it
// retries briefly before dropping the event.
func (e *Emitter) Emit(event *models.CoordinationEvent) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Warn().
				Uint64("total_dropped", count).
				Str("event_type", string(event.Type)).
				Msg("event channel full, dropped notification")
		}
	}
}

// DroppedCount returns the total number of notifications dropped so far.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *Emitter) Events() <-chan *models.CoordinationEvent {
	return e.events
}

// Close closes the subscriber channel. Publish must not be called after
// Close.
func (e *Emitter) Close() {
	close(e.events)
}
