package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Gauntlet configuration
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Trigger TriggerConfig `mapstructure:"trigger"`
	Logging LoggingConfig `mapstructure:"logging"`
	Paths   PathsConfig   `mapstructure:"paths"`
}

// EngineConfig controls pipeline execution behavior
type EngineConfig struct {
	// PhaseTimeoutSeconds bounds each phase of a run (default: 300)
	PhaseTimeoutSeconds int `mapstructure:"phase_timeout_seconds"`
	// SubtaskTimeoutSeconds bounds each capability invocation (default: 60)
	SubtaskTimeoutSeconds int `mapstructure:"subtask_timeout_seconds"`
	// MaxRetries is the number of extra attempts a transiently failing
	// sub-task gets within its phase (default: 0, no retries)
	MaxRetries int `mapstructure:"max_retries"`
}

// PhaseTimeout returns the phase timeout as a time.Duration
func (c *EngineConfig) PhaseTimeout() time.Duration {
	return time.Duration(c.PhaseTimeoutSeconds) * time.Second
}

// SubtaskTimeout returns the sub-task timeout as a time.Duration
func (c *EngineConfig) SubtaskTimeout() time.Duration {
	return time.Duration(c.SubtaskTimeoutSeconds) * time.Second
}

// TriggerConfig controls run admission behavior
type TriggerConfig struct {
	// Policy decides what happens to a trigger for a busy subject
	// Options: "reject", "queue"
	Policy string `mapstructure:"policy"`
	// SpoolDir is the directory watched for *.run trigger files.
	// If empty, defaults to "spool" under the state directory.
	// Supports ~ for home directory expansion.
	SpoolDir string `mapstructure:"spool_dir"`
}

// ResolveSpoolDir returns the resolved spool directory path.
// If SpoolDir is empty, it defaults to "spool" under stateDir.
func (c *TriggerConfig) ResolveSpoolDir(stateDir string) string {
	if c.SpoolDir == "" {
		return filepath.Join(stateDir, "spool")
	}
	return expandPath(c.SpoolDir, stateDir)
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path. If empty, defaults to "gauntlet.log"
	// under the state directory. Supports ~ for home directory expansion.
	File string `mapstructure:"file"`
}

// ResolveFile returns the resolved log file path.
// If File is empty, it defaults to "gauntlet.log" under stateDir.
func (c *LoggingConfig) ResolveFile(stateDir string) string {
	if c.File == "" {
		return filepath.Join(stateDir, "gauntlet.log")
	}
	return expandPath(c.File, stateDir)
}

// PathsConfig controls where Gauntlet stores data
type PathsConfig struct {
	// StateDir is the directory where run state, artifacts, and the
	// subject registry live. If empty, defaults to the XDG data
	// directory (~/.local/share/gauntlet).
	// Supports ~ for home directory expansion.
	StateDir string `mapstructure:"state_dir"`

	// Blueprint is the path to the blueprint YAML driving runs.
	// If empty, the built-in default blueprint is used.
	// Supports ~ for home directory expansion.
	Blueprint string `mapstructure:"blueprint"`
}

// ResolveStateDir returns the resolved state directory path.
// If StateDir is empty, it returns the default data directory.
// If StateDir starts with ~, it expands to the user's home directory.
// If StateDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveStateDir(baseDir string) string {
	if p.StateDir == "" {
		return DefaultStateDir()
	}
	return expandPath(p.StateDir, baseDir)
}

// ResolveBlueprint returns the resolved blueprint path, or "" when the
// built-in default blueprint should be used.
func (p *PathsConfig) ResolveBlueprint(baseDir string) string {
	if p.Blueprint == "" {
		return ""
	}
	return expandPath(p.Blueprint, baseDir)
}

// expandPath expands a leading ~ and resolves relative paths against
// baseDir.
func expandPath(path, baseDir string) string {
	switch {
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Default returns the built-in configuration. Empty path fields mean
// "derive from the state directory" and are resolved by the Resolve*
// helpers.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			PhaseTimeoutSeconds:   300,
			SubtaskTimeoutSeconds: 60,
			MaxRetries:            0,
		},
		Trigger: TriggerConfig{
			Policy: "reject",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// SetDefaults registers the built-in defaults with viper so that partial
// config files and flag overrides merge on top of them.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("engine.phase_timeout_seconds", defaults.Engine.PhaseTimeoutSeconds)
	viper.SetDefault("engine.subtask_timeout_seconds", defaults.Engine.SubtaskTimeoutSeconds)
	viper.SetDefault("engine.max_retries", defaults.Engine.MaxRetries)
	viper.SetDefault("trigger.policy", defaults.Trigger.Policy)
	viper.SetDefault("trigger.spool_dir", defaults.Trigger.SpoolDir)
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.blueprint", defaults.Paths.Blueprint)
}

// Load unmarshals the current viper state into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the loaded configuration, falling back to Default() when
// the viper state does not unmarshal or validate.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// xdgDir resolves a gauntlet-suffixed directory from an XDG environment
// variable, falling back to homeRel under the home directory.
func xdgDir(envVar string, homeRel ...string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, "gauntlet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gauntlet"
	}
	parts := append([]string{home}, homeRel...)
	return filepath.Join(append(parts, "gauntlet")...)
}

// ConfigDir returns the directory holding config.yaml, honoring
// XDG_CONFIG_HOME.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultStateDir returns the default data directory, honoring
// XDG_DATA_HOME.
func DefaultStateDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ValidTriggerPolicies returns the accepted trigger.policy values.
func ValidTriggerPolicies() []string {
	return []string{"reject", "queue"}
}

// IsValidTriggerPolicy checks if the given policy is valid
func IsValidTriggerPolicy(policy string) bool {
	return slices.Contains(ValidTriggerPolicies(), policy)
}
