package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "specflow",
	Short: "Spec-driven agent workflow orchestrator",
	Long: `Specflow turns free-text change requests into reviewed specification
documents and coordinates the AI coding agents that implement them.

The workflow per task:
- A planning agent generates requirements, design, and an implementation plan
- A human reviews and approves the specs (or requests changes)
- Approval commits the spec documents to a git branch and fans the plan out
  into work sessions, one per ready implementation task
- Sessions coordinate through a durable event bus and are watched for
  liveness via heartbeats`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	},
}

// logger is the process-wide logger, configured by the root command and
// handed to every component the commands construct.
var logger zerolog.Logger

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
