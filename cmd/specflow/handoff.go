package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var handoffCmd = &cobra.Command{
	Use:   "handoff <task-id>",
	Short: "Retry a failed spec-to-implementation handoff",
	Long: `Re-run the git handoff for an approved spec task.

The handoff is idempotent: documents already committed on the task branch
are detected by content and skipped, so a retry after a partial failure
commits only what is missing. A task already handed off is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runHandoff,
}

func runHandoff(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.engine.RetryHandoff(args[0])
	if err != nil {
		return err
	}

	printOK("handoff complete for %s", task.ID)
	fmt.Printf("  Branch: %s\n", task.BranchName)
	fmt.Printf("  Commit: %s\n", idStyle.Render(task.LastCommitHash))
	fmt.Printf("  Status: %s\n", renderStatus(task.Status))
	return nil
}
