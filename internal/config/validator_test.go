package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "engine.max_retries",
		Value:   -5,
		Message: "must be between 0 and 10",
	}

	want := "engine.max_retries: must be between 0 and 10 (got: -5)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("no errors yields an empty string", func(t *testing.T) {
		var errs ValidationErrors
		if got := errs.Error(); got != "" {
			t.Errorf("Error() = %q, want empty", got)
		}
	})

	t.Run("a single error reads like the error itself", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "trigger.policy", Value: "sometimes", Message: "must be one of: reject, queue"},
		}
		want := errs[0].Error()
		if got := errs.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("multiple errors are counted and numbered", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "trigger.policy", Value: "sometimes", Message: "must be one of: reject, queue"},
			{Field: "logging.level", Value: "trace", Message: "must be one of: debug, info, warn, error"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:") {
			t.Errorf("Error() = %q, want a count prefix", got)
		}
		for _, field := range []string{"trigger.policy", "logging.level"} {
			if !strings.Contains(got, field) {
				t.Errorf("Error() = %q, missing field %s", got, field)
			}
		}
	})
}

// hasFieldError reports whether any validation error names the field.
func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Fatalf("Default() failed its own validation: %v", errs)
	}
}

func TestConfig_Validate_Engine(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		hasError bool
	}{
		{"valid timeouts", func(c *Config) {}, "engine.phase_timeout_seconds", false},
		{"zero phase timeout", func(c *Config) { c.Engine.PhaseTimeoutSeconds = 0 }, "engine.phase_timeout_seconds", true},
		{"negative phase timeout", func(c *Config) { c.Engine.PhaseTimeoutSeconds = -1 }, "engine.phase_timeout_seconds", true},
		{"excessive phase timeout", func(c *Config) { c.Engine.PhaseTimeoutSeconds = 100_000 }, "engine.phase_timeout_seconds", true},
		{"zero subtask timeout", func(c *Config) { c.Engine.SubtaskTimeoutSeconds = 0 }, "engine.subtask_timeout_seconds", true},
		{"excessive subtask timeout", func(c *Config) { c.Engine.SubtaskTimeoutSeconds = 100_000 }, "engine.subtask_timeout_seconds", true},
		{
			"subtask timeout above phase timeout",
			func(c *Config) {
				c.Engine.PhaseTimeoutSeconds = 30
				c.Engine.SubtaskTimeoutSeconds = 60
			},
			"engine.subtask_timeout_seconds", true,
		},
		{"negative retries", func(c *Config) { c.Engine.MaxRetries = -1 }, "engine.max_retries", true},
		{"excessive retries", func(c *Config) { c.Engine.MaxRetries = 50 }, "engine.max_retries", true},
		{"max allowed retries", func(c *Config) { c.Engine.MaxRetries = 10 }, "engine.max_retries", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()

			if got := hasFieldError(errs, tt.field); got != tt.hasError {
				t.Errorf("Validate(): error on %s = %v, want %v (errors: %v)", tt.field, got, tt.hasError, errs)
			}
		})
	}
}

func TestConfig_Validate_Trigger(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		hasError bool
	}{
		{"valid reject", "reject", false},
		{"valid queue", "queue", false},
		{"empty is valid", "", false},
		{"invalid policy", "sometimes", true},
		{"case sensitive", "QUEUE", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Trigger.Policy = tt.policy
			errs := cfg.Validate()

			if got := hasFieldError(errs, "trigger.policy"); got != tt.hasError {
				t.Errorf("Validate() for policy=%q: hasError=%v, want %v", tt.policy, got, tt.hasError)
			}
		})
	}

	t.Run("spool dir with null byte", func(t *testing.T) {
		cfg := Default()
		cfg.Trigger.SpoolDir = "spool\x00dir"
		errs := cfg.Validate()
		if !hasFieldError(errs, "trigger.spool_dir") {
			t.Error("expected error for spool dir with null byte")
		}
	})
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		hasError bool
	}{
		{"valid debug", "debug", false},
		{"valid info", "info", false},
		{"valid warn", "warn", false},
		{"valid error", "error", false},
		{"empty is valid", "", false},
		{"invalid level", "trace", true},
		{"case sensitive", "INFO", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level
			errs := cfg.Validate()

			if got := hasFieldError(errs, "logging.level"); got != tt.hasError {
				t.Errorf("Validate() for level=%q: hasError=%v, want %v", tt.level, got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_Paths(t *testing.T) {
	t.Run("state dir with null byte", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.StateDir = "state\x00dir"
		errs := cfg.Validate()
		if !hasFieldError(errs, "paths.state_dir") {
			t.Error("expected error for state dir with null byte")
		}
	})

	t.Run("overlong blueprint path", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.Blueprint = strings.Repeat("a", 5000)
		errs := cfg.Validate()
		if !hasFieldError(errs, "paths.blueprint") {
			t.Error("expected error for overlong blueprint path")
		}
	})

	t.Run("normal paths are valid", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.StateDir = "/var/lib/gauntlet"
		cfg.Paths.Blueprint = "blueprints/release.yaml"
		errs := cfg.Validate()
		if len(errs) != 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Engine.PhaseTimeoutSeconds = -1
	cfg.Engine.MaxRetries = -1
	cfg.Trigger.Policy = "sometimes"
	cfg.Logging.Level = "trace"

	errs := cfg.Validate()
	if len(errs) < 4 {
		t.Errorf("Validate() should report every failure, got %d: %v", len(errs), errs)
	}
}
