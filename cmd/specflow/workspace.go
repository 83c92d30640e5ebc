package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// workspaceSpec is the YAML workspace layout handed to implementation
// sessions. The engine treats it as opaque; validation happens here at the
// edge so a typo fails the command, not an agent hours later.
type workspaceSpec struct {
	Name         string            `yaml:"name"`
	RepoURL      string            `yaml:"repo_url,omitempty"`
	BaseBranch   string            `yaml:"base_branch,omitempty"`
	SetupCommand string            `yaml:"setup_command,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
}

// agentSpec is the YAML agent configuration attached to spawned sessions.
type agentSpec struct {
	Model        string   `yaml:"model,omitempty"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	MaxTurns     int      `yaml:"max_turns,omitempty"`
}

// loadWorkspaceConfig reads and validates a workspace YAML file, returning
// the canonical bytes to persist.
func loadWorkspaceConfig(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace config: %w", err)
	}
	var spec workspaceSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse workspace config %s: %w", path, err)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("workspace config %s: name is required", path)
	}
	return yaml.Marshal(&spec)
}

// loadAgentConfig reads and validates an agent YAML file.
func loadAgentConfig(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}
	var spec agentSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse agent config %s: %w", path, err)
	}
	if spec.MaxTurns < 0 {
		return nil, fmt.Errorf("agent config %s: max_turns must be >= 0", path)
	}
	return yaml.Marshal(&spec)
}
