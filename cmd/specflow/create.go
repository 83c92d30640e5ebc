package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/internal/engine"
	"github.com/specdriven/specflow/pkg/models"
)

var (
	createName        string
	createDescription string
	createPriority    string
	createProject     string
	createProjectPath string
	createWorkspace   string
	createCreatedBy   string
	createYolo        bool
)

var createCmd = &cobra.Command{
	Use:   "create <prompt>",
	Short: "Create a spec task from a change request",
	Long: `Create a new spec task from a free-text change request.

The task starts in spec_generation. Run 'specflow generate' (or keep
'specflow run' going) to have the planning agent produce the requirements,
design, and implementation plan for review.

With --yolo the generated specs are approved automatically and handed off
without a review pause.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "Display name (defaults to the prompt's first line)")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Longer description")
	createCmd.Flags().StringVar(&createPriority, "priority", "", "Priority: low, medium, high, critical")
	createCmd.Flags().StringVar(&createProject, "project", "", "Project reference")
	createCmd.Flags().StringVar(&createProjectPath, "project-path", "", "Path to the project working copy")
	createCmd.Flags().StringVar(&createWorkspace, "workspace", "", "Workspace YAML handed to implementation sessions")
	createCmd.Flags().StringVar(&createCreatedBy, "created-by", "", "Creator identity recorded on the task")
	createCmd.Flags().BoolVar(&createYolo, "yolo", false, "Auto-approve generated specs, skipping review")
}

func runCreate(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")

	var workspaceConfig []byte
	if createWorkspace != "" {
		var err error
		workspaceConfig, err = loadWorkspaceConfig(createWorkspace)
		if err != nil {
			return err
		}
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	priority := models.Priority(createPriority)
	if createPriority == "" {
		priority = models.Priority(a.cfg.Defaults.Priority)
	}
	yolo := createYolo || a.cfg.Defaults.YoloMode

	task, err := a.engine.CreateFromPrompt(prompt, priority, createProject, engine.CreateOptions{
		Name:            createName,
		Description:     createDescription,
		CreatedBy:       createCreatedBy,
		ProjectPath:     createProjectPath,
		WorkspaceConfig: workspaceConfig,
		YoloMode:        yolo,
	})
	if err != nil {
		return err
	}

	printOK("created %s", task.ID)
	fmt.Printf("  Name:     %s\n", titleStyle.Render(task.Name))
	fmt.Printf("  Priority: %s\n", task.Priority)
	fmt.Printf("  Status:   %s\n", renderStatus(task.Status))
	if task.YoloMode {
		printWarn("yolo mode: specs will be approved without review")
	}
	return nil
}
