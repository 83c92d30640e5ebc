package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

var (
	statusProject  string
	statusFilter   string
	statusArchived bool
	statusLimit    int
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show spec tasks and their progress",
	Long: `Without arguments, lists spec tasks newest first.
With a task ID, shows that task's full progress: implementation plan
completion, work sessions, and recent activity.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatusCmd,
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "Filter by project reference")
	statusCmd.Flags().StringVar(&statusFilter, "filter", "", "Filter by status value")
	statusCmd.Flags().BoolVar(&statusArchived, "archived", false, "Include archived tasks")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum tasks to list")
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		return showTask(a, args[0])
	}
	return listTasks(a)
}

func listTasks(a *app) error {
	tasks, err := a.engine.Overview(state.SpecTaskFilters{
		ProjectID:       statusProject,
		Status:          models.SpecTaskStatus(statusFilter),
		IncludeArchived: statusArchived,
		Limit:           statusLimit,
	})
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No spec tasks. Run 'specflow create <prompt>' to start.")
		return nil
	}

	for _, t := range tasks {
		fmt.Printf("%s  %s\n", idStyle.Render(t.ID), titleStyle.Render(t.Name))
		fmt.Printf("    %s  %s  %s\n",
			renderStatus(t.Status), t.Priority,
			dimStyle.Render(fmt.Sprintf("updated %s ago", formatDuration(time.Since(t.UpdatedAt)))))
	}
	return nil
}

func showTask(a *app, taskID string) error {
	p, err := a.engine.Progress(taskID)
	if err != nil {
		return err
	}
	t := p.Task

	fmt.Printf("%s  %s\n", idStyle.Render(t.ID), titleStyle.Render(t.Name))
	fmt.Printf("  Status:   %s (%s phase)\n", renderStatus(t.Status), t.Phase)
	fmt.Printf("  Priority: %s\n", t.Priority)
	if t.SpecRevisionCount > 0 {
		fmt.Printf("  Spec revisions: %d\n", t.SpecRevisionCount)
	}
	if t.BranchName != "" {
		fmt.Printf("  Branch:   %s\n", t.BranchName)
	}
	if p.TotalTasks > 0 {
		fmt.Printf("  Plan:     %d/%d tasks completed (%.0f%%)\n",
			p.CompletedTasks, p.TotalTasks, p.Fraction*100)
	}

	if len(p.Sessions) > 0 {
		fmt.Println("\nSessions:")
		for _, s := range p.Sessions {
			fmt.Printf("  %s  %s  %s\n",
				idStyle.Render(s.ID), renderSessionStatus(s.Status), s.Name)
		}
	}

	activity, err := a.engine.Activity(taskID, 10)
	if err != nil {
		return err
	}
	if len(activity) > 0 {
		fmt.Println("\nRecent activity:")
		for _, e := range activity {
			fmt.Printf("  %s  %s  %s\n",
				dimStyle.Render(e.Timestamp.Format("15:04:05")), e.ActivityType, e.Message)
		}
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
