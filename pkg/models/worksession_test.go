package models

import "testing"

func TestWorkSessionStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from WorkSessionStatus
		to   WorkSessionStatus
		want bool
	}{
		{"pending to active", WorkSessionStatusPending, WorkSessionStatusActive, true},
		{"active to completed", WorkSessionStatusActive, WorkSessionStatusCompleted, true},
		{"active to failed", WorkSessionStatusActive, WorkSessionStatusFailed, true},
		{"active to cancelled", WorkSessionStatusActive, WorkSessionStatusCancelled, true},
		{"active to blocked", WorkSessionStatusActive, WorkSessionStatusBlocked, true},
		{"blocked recovers to active", WorkSessionStatusBlocked, WorkSessionStatusActive, true},
		{"pending cannot complete", WorkSessionStatusPending, WorkSessionStatusCompleted, false},
		{"completed is terminal", WorkSessionStatusCompleted, WorkSessionStatusActive, false},
		{"cancelled is terminal", WorkSessionStatusCancelled, WorkSessionStatusActive, false},
		{"blocked cannot complete directly", WorkSessionStatusBlocked, WorkSessionStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestWorkSessionCanSpawn(t *testing.T) {
	s := &WorkSession{Status: WorkSessionStatusActive}
	if !s.CanSpawn() {
		t.Error("active session should be able to spawn")
	}
	s.Status = WorkSessionStatusPending
	if s.CanSpawn() {
		t.Error("pending session must not spawn")
	}
}

func TestImplementationStatusTransitions(t *testing.T) {
	if !ImplementationStatusPending.CanTransition(ImplementationStatusAssigned) {
		t.Error("pending -> assigned should be allowed")
	}
	if !ImplementationStatusAssigned.CanTransition(ImplementationStatusInProgress) {
		t.Error("assigned -> in_progress should be allowed")
	}
	if !ImplementationStatusInProgress.CanTransition(ImplementationStatusCompleted) {
		t.Error("in_progress -> completed should be allowed")
	}
	if ImplementationStatusPending.CanTransition(ImplementationStatusCompleted) {
		t.Error("pending -> completed must not be allowed")
	}
	if ImplementationStatusCompleted.CanTransition(ImplementationStatusPending) {
		t.Error("completed is terminal")
	}
}

func TestIDPrefixes(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
	}{
		{NewSpecTaskID(), "spt_"},
		{NewWorkSessionID(), "stws_"},
		{NewImplementationTaskID(), "stit_"},
		{NewCoordinationEventID(), "stev_"},
		{NewActivityID(), "sta_"},
	}
	for _, tt := range tests {
		if len(tt.id) <= len(tt.prefix) || tt.id[:len(tt.prefix)] != tt.prefix {
			t.Errorf("id %q does not carry prefix %q", tt.id, tt.prefix)
		}
	}
	if NewSpecTaskID() == NewSpecTaskID() {
		t.Error("ids must be unique")
	}
}
