// Package liveness judges whether external agent processes bound to work
// sessions are still alive, based on heartbeat timestamps. The monitor never
// starts or stops agent processes; it only observes and flips session status.
package liveness

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

// Default thresholds, overridable through configuration.
const (
	DefaultWarningThreshold     = 10 * time.Minute
	DefaultTerminationThreshold = 30 * time.Minute
)

// Assessment is the derived liveness view for one agent. It is recomputed
// from stored timestamps on every call and never persisted.
type Assessment struct {
	AgentID         string
	SpecTaskID      string
	IdleMinutes     float64
	Warning         bool
	WillTerminateIn time.Duration
	ShouldTerminate bool
}

// Monitor evaluates heartbeats against the two idle thresholds and reacts to
// hard-threshold crossings by blocking the bound work session.
type Monitor struct {
	heartbeats state.HeartbeatStore
	sessions   state.WorkSessionStore
	activity   state.ActivityStore

	warn      time.Duration
	terminate time.Duration
	log       zerolog.Logger
}

// NewMonitor creates a Monitor with the given thresholds. Zero thresholds
// fall back to the defaults.
func NewMonitor(hb state.HeartbeatStore, sessions state.WorkSessionStore, activity state.ActivityStore, warn, terminate time.Duration, log zerolog.Logger) *Monitor {
	if warn <= 0 {
		warn = DefaultWarningThreshold
	}
	if terminate <= 0 {
		terminate = DefaultTerminationThreshold
	}
	return &Monitor{
		heartbeats: hb,
		sessions:   sessions,
		activity:   activity,
		warn:       warn,
		terminate:  terminate,
		log:        log,
	}
}

// Register records an agent's session-creation time so an agent that never
// heartbeats is judged idle from creation rather than treated as an error.
func (m *Monitor) Register(agentID, specTaskID string, createdAt time.Time) error {
	return m.heartbeats.RegisterAgent(agentID, specTaskID, createdAt)
}

// RecordHeartbeat updates the agent's last-beat time, resetting its idle
// counter.
func (m *Monitor) RecordHeartbeat(agentID string, at time.Time) error {
	return m.heartbeats.RecordHeartbeat(agentID, at)
}

// Evaluate computes the liveness view for one agent at the given instant.
// It is a pure read: no status changes happen here.
func (m *Monitor) Evaluate(agentID string, now time.Time) (*Assessment, error) {
	record, err := m.heartbeats.GetHeartbeat(agentID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, models.ErrNotFound)
	}
	return m.assess(record, now), nil
}

func (m *Monitor) assess(r *state.HeartbeatRecord, now time.Time) *Assessment {
	anchor := r.SessionCreatedAt
	if r.LastBeat != nil {
		anchor = *r.LastBeat
	}
	idle := now.Sub(anchor)
	if idle < 0 {
		idle = 0
	}

	remaining := m.terminate - idle
	if remaining < 0 {
		remaining = 0
	}
	return &Assessment{
		AgentID:         r.AgentID,
		SpecTaskID:      r.SpecTaskID,
		IdleMinutes:     idle.Minutes(),
		Warning:         idle >= m.warn,
		WillTerminateIn: remaining,
		ShouldTerminate: idle >= m.terminate,
	}
}

// Sweep evaluates every registered agent and reacts to hard-threshold
// crossings: the bound work session is moved to blocked and an
// agent_disconnected entry is written to the audit trail. Reclaiming the
// agent process itself is the external host's job.
func (m *Monitor) Sweep(now time.Time) ([]*Assessment, error) {
	records, err := m.heartbeats.ListHeartbeats()
	if err != nil {
		return nil, err
	}

	var results []*Assessment
	for _, r := range records {
		a := m.assess(r, now)
		results = append(results, a)
		if !a.ShouldTerminate {
			continue
		}
		if err := m.blockBoundSession(r, a, now); err != nil {
			m.log.Error().Err(err).Str("agent_id", r.AgentID).Msg("failed to block session for dead agent")
		}
	}
	return results, nil
}

// blockBoundSession finds the active session bound to the agent and moves it
// to blocked. A session that already left active is left alone.
func (m *Monitor) blockBoundSession(r *state.HeartbeatRecord, a *Assessment, now time.Time) error {
	if r.SpecTaskID == "" {
		return nil
	}
	sessions, err := m.sessions.ListWorkSessions(r.SpecTaskID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.AgentSessionID != r.AgentID && s.AgentThreadID != r.AgentID {
			continue
		}
		if s.Status != models.WorkSessionStatusActive {
			return nil
		}
		swapped, err := m.sessions.CompareAndSwapWorkSessionStatus(
			s.ID, models.WorkSessionStatusActive, models.WorkSessionStatusBlocked, now.Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		if !swapped {
			return nil
		}
		m.log.Warn().
			Str("agent_id", r.AgentID).
			Str("work_session_id", s.ID).
			Float64("idle_minutes", a.IdleMinutes).
			Msg("agent missed hard idle threshold, session blocked")
		return m.activity.AppendActivity(&models.ActivityLogEntry{
			ID:            models.NewActivityID(),
			SpecTaskID:    r.SpecTaskID,
			WorkSessionID: s.ID,
			ActivityType:  models.ActivityAgentDisconnected,
			Message:       fmt.Sprintf("agent %s idle for %.0f minutes, session blocked", r.AgentID, a.IdleMinutes),
			Metadata:      map[string]interface{}{"idle_minutes": a.IdleMinutes},
			Timestamp:     now,
		})
	}
	return nil
}
