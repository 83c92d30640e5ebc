package liveness

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher turns filesystem touches into heartbeats. External agent hosts
// that cannot call the engine directly touch a file named after their agent
// ID under the heartbeat directory; every write counts as one beat.
type Watcher struct {
	dir     string
	monitor *Monitor
	log     zerolog.Logger
}

// NewWatcher creates a Watcher over dir. The directory must exist.
func NewWatcher(dir string, monitor *Monitor, log zerolog.Logger) *Watcher {
	return &Watcher{dir: dir, monitor: monitor, log: log}
}

// Run watches the heartbeat directory until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Debug().Str("dir", w.dir).Msg("watching heartbeat directory")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			agentID := filepath.Base(event.Name)
			if agentID == "" || agentID[0] == '.' {
				continue
			}
			if err := w.monitor.RecordHeartbeat(agentID, time.Now()); err != nil {
				w.log.Error().Err(err).Str("agent_id", agentID).Msg("failed to record heartbeat")
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("heartbeat watcher error")
		}
	}
}
