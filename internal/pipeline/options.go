package pipeline

import (
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/logging"
)

// Default execution bounds applied when neither the blueprint nor an
// option overrides them.
const (
	// DefaultPhaseTimeout bounds a whole phase, including retries.
	DefaultPhaseTimeout = 5 * time.Minute

	// DefaultSubtaskTimeout bounds a single capability invocation.
	DefaultSubtaskTimeout = time.Minute
)

// Option configures optional engine behavior.
type Option func(*engineConfig)

// engineConfig holds options resolved at construction time.
type engineConfig struct {
	logger         *logging.Logger
	phaseTimeout   time.Duration
	subtaskTimeout time.Duration
	maxRetries     int
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:         logging.NopLogger(),
		phaseTimeout:   DefaultPhaseTimeout,
		subtaskTimeout: DefaultSubtaskTimeout,
	}
}

// WithLogger sets the logger for engine and run logging. Defaults to a
// no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPhaseTimeout sets the fallback phase timeout used when a phase
// does not declare its own.
func WithPhaseTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.phaseTimeout = d
		}
	}
}

// WithSubtaskTimeout sets the fallback sub-task timeout used when a
// sub-task does not declare its own.
func WithSubtaskTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.subtaskTimeout = d
		}
	}
}

// WithMaxRetries sets how many times a transiently failing sub-task is
// re-invoked within its phase. Zero, the default, disables retries.
func WithMaxRetries(n int) Option {
	return func(c *engineConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}
