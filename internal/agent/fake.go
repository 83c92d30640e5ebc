package agent

import (
	"context"
	"sync"

	"github.com/specdriven/specflow/pkg/models"
)

// FakePlanner is a canned Planner for tests.
type FakePlanner struct {
	mu    sync.Mutex
	Docs  Documents
	Err   error
	calls int
	last  *models.SpecTask
}

func (f *FakePlanner) GenerateSpecs(_ context.Context, task *models.SpecTask) (*Documents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = task
	if f.Err != nil {
		return nil, f.Err
	}
	docs := f.Docs
	return &docs, nil
}

// Calls returns how many times GenerateSpecs was invoked.
func (f *FakePlanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastTask returns the task from the most recent invocation.
func (f *FakePlanner) LastTask() *models.SpecTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

var _ Planner = (*FakePlanner)(nil)
