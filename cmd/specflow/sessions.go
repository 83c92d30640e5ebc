package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/pkg/models"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and update work sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List a spec task's work sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsList,
}

var sessionsUpdateCmd = &cobra.Command{
	Use:   "update <session-id> <status>",
	Short: "Transition a work session's status",
	Long: `Apply a status transition to a work session.

Valid statuses: pending, active, completed, failed, cancelled, blocked.
Completing a session completes its bound implementation task and spawns
sessions for any tasks the completion unblocked; the owning spec task
advances to validation when the whole plan is done. Cancelling a session
notifies its children but does not stop them.`,
	Args: cobra.ExactArgs(2),
	RunE: runSessionsUpdate,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsUpdateCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.db.ListWorkSessions(args[0])
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No work sessions yet.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %s  %s\n",
			idStyle.Render(s.ID), renderSessionStatus(s.Status), titleStyle.Render(s.Name))
		if s.ParentWorkSessionID != "" {
			fmt.Printf("    parent: %s\n", dimStyle.Render(s.ParentWorkSessionID))
		}
		if s.ImplementationTaskID != "" {
			fmt.Printf("    task %d: %s\n", s.ImplementationTaskIndex+1, s.ImplementationTaskTitle)
		}
	}
	return nil
}

func runSessionsUpdate(cmd *cobra.Command, args []string) error {
	next := models.WorkSessionStatus(args[1])
	if !next.Valid() {
		return fmt.Errorf("unknown session status %q", args[1])
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.engine.UpdateSessionStatus(args[0], next)
	if err != nil {
		return err
	}
	printOK("session %s is now %s", s.ID, renderSessionStatus(s.Status))
	return nil
}
