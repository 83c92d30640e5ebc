package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/internal/liveness"
)

var runNoPlanner bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop",
	Long: `Run the orchestration loop until interrupted.

Each tick the engine:
- runs a planning pass for tasks awaiting spec generation (and revision
  rounds after requested changes), auto-approving in yolo mode
- sweeps agent heartbeats, blocking sessions whose agents went silent
- advances tasks whose implementation plans have fully completed

A filesystem watcher on the heartbeat spool directory turns file touches
into heartbeats, so agent hosts need no connection to this process.

Use --no-planner to run bookkeeping only, without agent credentials.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runNoPlanner, "no-planner", false, "Skip the planning agent; bookkeeping only")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(!runNoPlanner)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := os.MkdirAll(a.cfg.Liveness.HeartbeatDir, 0755); err != nil {
		return fmt.Errorf("create heartbeat directory: %w", err)
	}
	watcher := liveness.NewWatcher(a.cfg.Liveness.HeartbeatDir, a.monitor, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("heartbeat watcher stopped")
		}
	}()

	fmt.Printf("specflow running (tick %s, heartbeats in %s)\n",
		a.cfg.Engine.TickInterval, a.cfg.Liveness.HeartbeatDir)

	err = a.engine.Run(ctx, a.cfg.Engine.TickInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
