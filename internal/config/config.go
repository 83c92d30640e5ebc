// Package config handles configuration loading and management for specflow.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for specflow.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Liveness  LivenessConfig  `mapstructure:"liveness"`
	Handoff   HandoffConfig   `mapstructure:"handoff"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
}

// AnthropicConfig holds settings for the planning agent backend.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseAWSBedrock routes requests through Amazon Bedrock instead of the
	// Anthropic API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LivenessConfig holds agent heartbeat monitoring settings.
type LivenessConfig struct {
	WarningThreshold     time.Duration `mapstructure:"warning_threshold"`
	TerminationThreshold time.Duration `mapstructure:"termination_threshold"`
	HeartbeatDir         string        `mapstructure:"heartbeat_dir"`
}

// HandoffConfig holds spec-to-implementation handoff settings.
type HandoffConfig struct {
	BranchPrefix    string `mapstructure:"branch_prefix"`
	Push            bool   `mapstructure:"push"`
	OpenPullRequest bool   `mapstructure:"open_pull_request"`
}

// EngineConfig holds the background loop settings.
type EngineConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	EventBuffer  int           `mapstructure:"event_buffer"`
}

// DefaultsConfig holds default values for new spec tasks.
type DefaultsConfig struct {
	Priority string `mapstructure:"priority"`
	YoloMode bool   `mapstructure:"yolo_mode"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, SPECFLOW_*)
// 2. Project config (.specflow.yaml in current directory or parent)
// 3. User config (~/.config/specflow/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "SPECFLOW_MODEL")
	v.BindEnv("anthropic.use_aws_bedrock", "SPECFLOW_USE_BEDROCK")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")
	v.BindEnv("anthropic.aws_profile", "AWS_PROFILE")
	v.BindEnv("database.path", "SPECFLOW_DB_PATH")
	v.BindEnv("liveness.heartbeat_dir", "SPECFLOW_HEARTBEAT_DIR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("database.path", cfg.Database.Path)
	v.Set("liveness.warning_threshold", cfg.Liveness.WarningThreshold.String())
	v.Set("liveness.termination_threshold", cfg.Liveness.TerminationThreshold.String())
	v.Set("liveness.heartbeat_dir", cfg.Liveness.HeartbeatDir)
	v.Set("handoff.branch_prefix", cfg.Handoff.BranchPrefix)
	v.Set("handoff.push", cfg.Handoff.Push)
	v.Set("handoff.open_pull_request", cfg.Handoff.OpenPullRequest)
	v.Set("engine.tick_interval", cfg.Engine.TickInterval.String())
	v.Set("engine.event_buffer", cfg.Engine.EventBuffer)
	v.Set("defaults.priority", cfg.Defaults.Priority)
	v.Set("defaults.yolo_mode", cfg.Defaults.YoloMode)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("database.path", filepath.Join(getUserDataDir(), "state.db"))

	v.SetDefault("liveness.warning_threshold", "10m")
	v.SetDefault("liveness.termination_threshold", "30m")
	v.SetDefault("liveness.heartbeat_dir", filepath.Join(getUserDataDir(), "heartbeats"))

	v.SetDefault("handoff.branch_prefix", "spectask/")
	v.SetDefault("handoff.push", false)
	v.SetDefault("handoff.open_pull_request", false)

	v.SetDefault("engine.tick_interval", "30s")
	v.SetDefault("engine.event_buffer", 256)

	v.SetDefault("defaults.priority", "medium")
	v.SetDefault("defaults.yolo_mode", false)
}

// getUserConfigDir returns the XDG config directory for specflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "specflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "specflow")
	}
	return filepath.Join(home, ".config", "specflow")
}

// getUserDataDir returns the XDG data directory for specflow.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "specflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "specflow")
	}
	return filepath.Join(home, ".local", "share", "specflow")
}

// findProjectConfig searches for .specflow.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".specflow.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(getUserDataDir(), "state.db"),
		},
		Liveness: LivenessConfig{
			WarningThreshold:     10 * time.Minute,
			TerminationThreshold: 30 * time.Minute,
			HeartbeatDir:         filepath.Join(getUserDataDir(), "heartbeats"),
		},
		Handoff: HandoffConfig{
			BranchPrefix: "spectask/",
		},
		Engine: EngineConfig{
			TickInterval: 30 * time.Second,
			EventBuffer:  256,
		},
		Defaults: DefaultsConfig{
			Priority: "medium",
		},
	}
}
