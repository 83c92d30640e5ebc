package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <task-id>",
	Short: "Run a planning pass for a spec task",
	Long: `Invoke the planning agent for a spec task in spec_generation (or in
spec_changes_requested, to start a revision round that incorporates the
requested changes). On success the task moves to spec_review; in yolo mode
it is approved and handed off immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.engine.GenerateSpecs(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printOK("specs generated for %s", task.ID)
	fmt.Printf("  Status:   %s\n", renderStatus(task.Status))
	fmt.Printf("  Revision: %d\n", task.SpecRevisionCount)
	return nil
}
