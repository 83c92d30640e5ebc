package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/specdriven/specflow/internal/agent"
	"github.com/specdriven/specflow/internal/bus"
	"github.com/specdriven/specflow/internal/config"
	"github.com/specdriven/specflow/internal/engine"
	"github.com/specdriven/specflow/internal/git"
	"github.com/specdriven/specflow/internal/handoff"
	"github.com/specdriven/specflow/internal/liveness"
	"github.com/specdriven/specflow/internal/session"
	"github.com/specdriven/specflow/internal/state"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// app holds the wired-up components a command works with.
type app struct {
	cfg     *config.Config
	db      *state.DB
	bus     *bus.Bus
	tree    *session.Tree
	gate    *handoff.Gate
	monitor *liveness.Monitor
	engine  *engine.Engine
}

// newApp loads configuration and builds the component graph. withPlanner
// controls whether the Anthropic client is constructed; commands that never
// call the planning agent skip it so they work without credentials.
func newApp(withPlanner bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := state.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	b := bus.New(db, cfg.Engine.EventBuffer)
	tree := session.NewTree(db, b, logger)
	gitRunner := git.NewRunner(".")
	gate := handoff.NewGate(db, gitRunner, tree, logger)
	monitor := liveness.NewMonitor(db, db, db,
		cfg.Liveness.WarningThreshold, cfg.Liveness.TerminationThreshold, logger)

	var planner agent.Planner
	if withPlanner {
		apiKey, err := config.GetAPIKey(cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		client, err := agent.NewClient(agent.ClientConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			APIKey:        apiKey,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("anthropic client: %w", err)
		}
		planner = agent.NewAnthropicPlanner(client)
	}

	eng := engine.New(db, tree, gate, planner, monitor, handoff.Config{
		BranchPrefix:    cfg.Handoff.BranchPrefix,
		Push:            cfg.Handoff.Push,
		OpenPullRequest: cfg.Handoff.OpenPullRequest,
	}, logger)

	return &app{
		cfg:     cfg,
		db:      db,
		bus:     b,
		tree:    tree,
		gate:    gate,
		monitor: monitor,
		engine:  eng,
	}, nil
}

func (a *app) Close() {
	a.bus.Close()
	a.db.Close()
}
