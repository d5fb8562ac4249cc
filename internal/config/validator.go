package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError describes one rejected config value.
type ValidationError struct {
	Field   string // dotted config path, e.g. "engine.max_retries"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates every failure found in a single Validate
// pass so the user can fix them all at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks every section of the Config and returns all failures
// found, not just the first.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validateTrigger()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validatePaths()...)
	return errs
}

// timeoutErrors bounds a timeout field to [1s, 24h].
func timeoutErrors(field string, seconds int) []ValidationError {
	const maxSeconds = 86_400

	var errs []ValidationError
	if seconds < 1 {
		errs = append(errs, ValidationError{
			Field:   field,
			Value:   seconds,
			Message: "must be at least 1 second",
		})
	}
	if seconds > maxSeconds {
		errs = append(errs, ValidationError{
			Field:   field,
			Value:   seconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds (24h)", maxSeconds),
		})
	}
	return errs
}

func (c *Config) validateEngine() []ValidationError {
	errs := timeoutErrors("engine.phase_timeout_seconds", c.Engine.PhaseTimeoutSeconds)
	errs = append(errs, timeoutErrors("engine.subtask_timeout_seconds", c.Engine.SubtaskTimeoutSeconds)...)

	// A sub-task longer than its phase can never finish.
	if c.Engine.SubtaskTimeoutSeconds > 0 && c.Engine.PhaseTimeoutSeconds > 0 &&
		c.Engine.SubtaskTimeoutSeconds > c.Engine.PhaseTimeoutSeconds {
		errs = append(errs, ValidationError{
			Field:   "engine.subtask_timeout_seconds",
			Value:   c.Engine.SubtaskTimeoutSeconds,
			Message: fmt.Sprintf("should not exceed phase_timeout_seconds (%d)", c.Engine.PhaseTimeoutSeconds),
		})
	}

	const maxRetries = 10
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.max_retries",
			Value:   c.Engine.MaxRetries,
			Message: "must be non-negative (0 disables retries)",
		})
	}
	if c.Engine.MaxRetries > maxRetries {
		errs = append(errs, ValidationError{
			Field:   "engine.max_retries",
			Value:   c.Engine.MaxRetries,
			Message: fmt.Sprintf("exceeds maximum of %d", maxRetries),
		})
	}

	return errs
}

func (c *Config) validateTrigger() []ValidationError {
	var errs []ValidationError
	if c.Trigger.Policy != "" && !IsValidTriggerPolicy(c.Trigger.Policy) {
		errs = append(errs, ValidationError{
			Field:   "trigger.policy",
			Value:   c.Trigger.Policy,
			Message: "must be one of: " + strings.Join(ValidTriggerPolicies(), ", "),
		})
	}
	return append(errs, validatePathValue(c.Trigger.SpoolDir, "trigger.spool_dir")...)
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of: " + strings.Join(ValidLogLevels(), ", "),
		})
	}
	return append(errs, validatePathValue(c.Logging.File, "logging.file")...)
}

func (c *Config) validatePaths() []ValidationError {
	errs := validatePathValue(c.Paths.StateDir, "paths.state_dir")
	return append(errs, validatePathValue(c.Paths.Blueprint, "paths.blueprint")...)
}

// validatePathValue checks a configured path for invalid characters and
// length. Empty paths are valid; they select the default.
func validatePathValue(path, field string) []ValidationError {
	if path == "" {
		return nil
	}

	var errs []ValidationError
	if strings.ContainsRune(path, '\x00') {
		errs = append(errs, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Most filesystems cap paths near 4096 bytes.
	if len(path) > 4096 {
		errs = append(errs, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path exceeds maximum length of 4096 characters",
		})
	}
	return errs
}
