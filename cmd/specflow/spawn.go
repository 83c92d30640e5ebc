package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	spawnAgentConfig string
	spawnEnvConfig   string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <parent-session-id> <name>",
	Short: "Spawn a child work session",
	Long: `Create a child work session under an active parent.

The child starts pending and records the parent both as its structural
parent and as its spawner. Spawning from a session that is not active is
rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnAgentConfig, "agent-config", "", "Agent YAML for the child session")
	spawnCmd.Flags().StringVar(&spawnEnvConfig, "env-config", "", "Environment YAML for the child session")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	var agentConfig, envConfig []byte
	var err error
	if spawnAgentConfig != "" {
		if agentConfig, err = loadAgentConfig(spawnAgentConfig); err != nil {
			return err
		}
	}
	if spawnEnvConfig != "" {
		if envConfig, err = loadWorkspaceConfig(spawnEnvConfig); err != nil {
			return err
		}
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	child, err := a.tree.Spawn(args[0], args[1], agentConfig, envConfig)
	if err != nil {
		return err
	}

	printOK("spawned %s", child.ID)
	fmt.Printf("  Name:   %s\n", titleStyle.Render(child.Name))
	fmt.Printf("  Parent: %s\n", idStyle.Render(child.ParentWorkSessionID))
	fmt.Printf("  Status: %s\n", renderSessionStatus(child.Status))
	return nil
}
