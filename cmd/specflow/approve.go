package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/pkg/models"
)

var (
	approveChanges  []string
	approveComments string
	approveBy       string
)

var approveCmd = &cobra.Command{
	Use:   "approve <task-id>",
	Short: "Record a review verdict on generated specs",
	Long: `Approve a spec task's generated documents, or request changes.

Plain approval transitions the task to spec_approved and immediately runs
the git handoff: the spec documents are committed to the task's branch and
work sessions are created for the ready implementation tasks.

With --request-changes the task moves to spec_changes_requested instead,
the revision counter increments, and the listed changes are fed to the
planning agent on the next generation round.

If the handoff fails partway, the approval stands. Fix the cause and run
'specflow handoff <task-id>' to retry; documents already committed are
skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringArrayVar(&approveChanges, "request-changes", nil,
		"Request a change instead of approving (repeatable)")
	approveCmd.Flags().StringVar(&approveComments, "comments", "", "Reviewer comments")
	approveCmd.Flags().StringVar(&approveBy, "by", "", "Reviewer identity")
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	taskID := args[0]

	if len(approveChanges) > 0 {
		task, err := a.engine.SubmitApproval(taskID, models.ApprovalDecisionRequestChanges,
			approveChanges, approveBy, approveComments)
		if err != nil {
			return err
		}
		printOK("changes requested on %s (revision %d)", task.ID, task.SpecRevisionCount)
		for _, c := range task.RequestedChanges {
			fmt.Printf("  - %s\n", c)
		}
		return nil
	}

	task, err := a.engine.SubmitApproval(taskID, models.ApprovalDecisionApprove,
		nil, approveBy, approveComments)

	var hErr *models.HandoffError
	if errors.As(err, &hErr) {
		printWarn("approved, but handoff failed at %s stage: %v", hErr.Stage, hErr.Err)
		if len(hErr.CommittedFiles) > 0 {
			fmt.Printf("  Committed so far: %v\n", hErr.CommittedFiles)
		}
		fmt.Printf("  Retry with: specflow handoff %s\n", taskID)
		return err
	}
	if err != nil {
		return err
	}

	printOK("approved %s", task.ID)
	fmt.Printf("  Status: %s\n", renderStatus(task.Status))
	fmt.Printf("  Branch: %s\n", task.BranchName)
	return nil
}
