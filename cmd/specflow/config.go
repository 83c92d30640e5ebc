package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/specdriven/specflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify specflow configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/specflow/config.yaml
Project-specific overrides can be placed in .specflow.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s (%s)\n",
		config.MaskAPIKey(cfg.Anthropic.APIKey), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.model: %s\n", orUnset(cfg.Anthropic.Model))
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("anthropic.aws_region: %s\n", orUnset(cfg.Anthropic.AWSRegion))
	fmt.Printf("anthropic.aws_profile: %s\n", orUnset(cfg.Anthropic.AWSProfile))
	fmt.Printf("database.path: %s\n", cfg.Database.Path)
	fmt.Printf("liveness.warning_threshold: %s\n", cfg.Liveness.WarningThreshold)
	fmt.Printf("liveness.termination_threshold: %s\n", cfg.Liveness.TerminationThreshold)
	fmt.Printf("liveness.heartbeat_dir: %s\n", cfg.Liveness.HeartbeatDir)
	fmt.Printf("handoff.branch_prefix: %s\n", cfg.Handoff.BranchPrefix)
	fmt.Printf("handoff.push: %t\n", cfg.Handoff.Push)
	fmt.Printf("handoff.open_pull_request: %t\n", cfg.Handoff.OpenPullRequest)
	fmt.Printf("engine.tick_interval: %s\n", cfg.Engine.TickInterval)
	fmt.Printf("engine.event_buffer: %d\n", cfg.Engine.EventBuffer)
	fmt.Printf("defaults.priority: %s\n", cfg.Defaults.Priority)
	fmt.Printf("defaults.yolo_mode: %t\n", cfg.Defaults.YoloMode)
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orUnset(cfg.Anthropic.Model), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.aws_region":
		return orUnset(cfg.Anthropic.AWSRegion), nil
	case "anthropic.aws_profile":
		return orUnset(cfg.Anthropic.AWSProfile), nil
	case "database.path":
		return cfg.Database.Path, nil
	case "liveness.warning_threshold":
		return cfg.Liveness.WarningThreshold.String(), nil
	case "liveness.termination_threshold":
		return cfg.Liveness.TerminationThreshold.String(), nil
	case "liveness.heartbeat_dir":
		return cfg.Liveness.HeartbeatDir, nil
	case "handoff.branch_prefix":
		return cfg.Handoff.BranchPrefix, nil
	case "handoff.push":
		return strconv.FormatBool(cfg.Handoff.Push), nil
	case "handoff.open_pull_request":
		return strconv.FormatBool(cfg.Handoff.OpenPullRequest), nil
	case "engine.tick_interval":
		return cfg.Engine.TickInterval.String(), nil
	case "engine.event_buffer":
		return strconv.Itoa(cfg.Engine.EventBuffer), nil
	case "defaults.priority":
		return cfg.Defaults.Priority, nil
	case "defaults.yolo_mode":
		return strconv.FormatBool(cfg.Defaults.YoloMode), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "database.path":
		cfg.Database.Path = value
	case "liveness.warning_threshold":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for warning_threshold: %w", err)
		}
		cfg.Liveness.WarningThreshold = d
	case "liveness.termination_threshold":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for termination_threshold: %w", err)
		}
		cfg.Liveness.TerminationThreshold = d
	case "liveness.heartbeat_dir":
		cfg.Liveness.HeartbeatDir = value
	case "handoff.branch_prefix":
		cfg.Handoff.BranchPrefix = value
	case "handoff.push":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for handoff.push: %w", err)
		}
		cfg.Handoff.Push = b
	case "handoff.open_pull_request":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for open_pull_request: %w", err)
		}
		cfg.Handoff.OpenPullRequest = b
	case "engine.tick_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for tick_interval: %w", err)
		}
		cfg.Engine.TickInterval = d
	case "engine.event_buffer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for event_buffer: %w", err)
		}
		cfg.Engine.EventBuffer = n
	case "defaults.priority":
		cfg.Defaults.Priority = value
	case "defaults.yolo_mode":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for yolo_mode: %w", err)
		}
		cfg.Defaults.YoloMode = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
