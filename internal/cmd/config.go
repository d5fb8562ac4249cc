package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	tuiconfig "github.com/gauntlet-ci/gauntlet/internal/tui/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify Gauntlet configuration",
	Long: `Inspect and modify Gauntlet settings.

Run without arguments to print the resolved configuration. Subcommands
write individual keys or scaffold a starter config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a configuration value",
	Long: `Write one configuration key to the user's config file.

Keys use dot notation:
  gauntlet config set trigger.policy queue
  gauntlet config set engine.phase_timeout_seconds 600
  gauntlet config set logging.level debug

Valid keys:
  engine.phase_timeout_seconds   - Maximum seconds per phase
  engine.subtask_timeout_seconds - Maximum seconds per capability invocation
  engine.max_retries             - Extra attempts for transient failures
  trigger.policy                 - Busy-subject policy (reject, queue)
  trigger.spool_dir              - Spool directory for *.run trigger files
  logging.enabled                - Write structured logs (true/false)
  logging.level                  - Minimum log level (debug, info, warn, error)
  logging.file                   - Log file path
  paths.state_dir                - State directory
  paths.blueprint                - Blueprint YAML path`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file",
	Long:  `Create ~/.config/gauntlet/config.yaml populated with every option and its default.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file locations",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tuiconfig.Run()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	for _, sub := range []*cobra.Command{configShowCmd, configSetCmd, configInitCmd, configPathCmd, configEditCmd} {
		configCmd.AddCommand(sub)
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	source := viper.ConfigFileUsed()
	if source == "" {
		source = "(none - using defaults)"
	}

	fmt.Println("Current configuration:")
	fmt.Println()
	fmt.Printf("Config file: %s\n", source)
	fmt.Println()

	sections := []struct {
		name  string
		items [][2]string
	}{
		{"engine", [][2]string{
			{"phase_timeout_seconds", strconv.Itoa(cfg.Engine.PhaseTimeoutSeconds)},
			{"subtask_timeout_seconds", strconv.Itoa(cfg.Engine.SubtaskTimeoutSeconds)},
			{"max_retries", strconv.Itoa(cfg.Engine.MaxRetries)},
		}},
		{"trigger", [][2]string{
			{"policy", cfg.Trigger.Policy},
			{"spool_dir", displayPath(cfg.Trigger.SpoolDir)},
		}},
		{"logging", [][2]string{
			{"enabled", strconv.FormatBool(cfg.Logging.Enabled)},
			{"level", cfg.Logging.Level},
			{"file", displayPath(cfg.Logging.File)},
		}},
		{"paths", [][2]string{
			{"state_dir", displayPath(cfg.Paths.StateDir)},
			{"blueprint", displayPath(cfg.Paths.Blueprint)},
		}},
	}

	for _, section := range sections {
		fmt.Printf("%s:\n", section.name)
		for _, item := range section.items {
			fmt.Printf("  %s: %s\n", item[0], item[1])
		}
	}

	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "(default)"
	}
	return path
}

// configKeyTypes maps every settable key to the coercion its value needs.
var configKeyTypes = map[string]string{
	"engine.phase_timeout_seconds":   "int",
	"engine.subtask_timeout_seconds": "int",
	"engine.max_retries":             "int",
	"trigger.policy":                 "string",
	"trigger.spool_dir":              "path",
	"logging.enabled":                "bool",
	"logging.level":                  "string",
	"logging.file":                   "path",
	"paths.state_dir":                "path",
	"paths.blueprint":                "path",
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	keyType, ok := configKeyTypes[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'gauntlet config set --help' to see valid keys", key)
	}

	typedValue, err := coerceConfigValue(key, keyType, value)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typedValue)
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)
	return nil
}

// coerceConfigValue turns the raw CLI string into the type the key wants,
// rejecting values the config layer would refuse to validate later.
func coerceConfigValue(key, keyType, value string) (any, error) {
	switch keyType {
	case "string":
		if key == "trigger.policy" && !config.IsValidTriggerPolicy(value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidTriggerPolicies(), ", "))
		}
		if key == "logging.level" && !slices.Contains(config.ValidLogLevels(), strings.ToLower(value)) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		return strings.ToLower(value), nil
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	default:
		return value, nil
	}
}

const starterConfigYAML = `# Gauntlet Configuration

# Pipeline engine settings
engine:
  # Maximum seconds a single phase may run; sub-tasks still in flight
  # when the phase times out are recorded as timeout failures
  phase_timeout_seconds: 300
  # Maximum seconds a single capability invocation may run
  subtask_timeout_seconds: 60
  # Extra attempts for transiently failing sub-tasks (0 = no retries)
  max_retries: 0

# Run admission settings
trigger:
  # What happens to a trigger while the subject's run is still active
  # Options: reject, queue
  policy: reject
  # Directory watched for *.run trigger files
  # Empty means "spool" under the state directory
  spool_dir: ""

# Structured logging
logging:
  enabled: true
  # Minimum level: debug, info, warn, error
  level: info
  # Empty means "gauntlet.log" under the state directory
  file: ""

# Storage locations
paths:
  # Where run state, artifacts, and the subject registry live
  # Empty means the XDG data directory (~/.local/share/gauntlet)
  state_dir: ""
  # Blueprint YAML driving runs; empty means the built-in default
  blueprint: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'gauntlet config set' to modify values", configFile)
	}

	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(starterConfigYAML), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize Gauntlet's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if active := viper.ConfigFileUsed(); active != "" {
		fmt.Printf("Active config: %s\n", active)
	} else {
		fmt.Printf("Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Println("\nSearch paths:")
	locations := []string{
		filepath.Join(config.ConfigDir(), "config.yaml"),
		"$HOME/.config/gauntlet/config.yaml",
		"./config.yaml (current directory)",
	}
	for i, loc := range locations {
		fmt.Printf("  %d. %s\n", i+1, loc)
	}
	fmt.Println("\nEnvironment variables: GAUNTLET_* (e.g., GAUNTLET_TRIGGER_POLICY)")
	return nil
}
