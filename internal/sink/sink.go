package sink

import (
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// RunStatus is the sink-side view of a subject's latest run.
type RunStatus string

const (
	// RunStatusRegistered means the subject has never been run.
	RunStatusRegistered RunStatus = "registered"

	// RunStatusInProgress means a run is underway.
	RunStatusInProgress RunStatus = "in_progress"

	// RunStatusCompleted means the latest run finished successfully.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed means the latest run failed.
	RunStatusFailed RunStatus = "failed"
)

// Subject is a project registered for pipeline runs.
type Subject struct {
	// ID is the unique subject identifier used by runs and the CLI.
	ID string `json:"id"`

	// Repo is the repository path or URL the subject refers to.
	Repo string `json:"repo,omitempty"`

	// Description is free-form display text.
	Description string `json:"description,omitempty"`

	// Status reflects the subject's latest run.
	Status RunStatus `json:"status"`

	// Reason carries the failure reason when Status is failed.
	Reason string `json:"reason,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// Sink records run progress for registered subjects. Engines call the
// mark methods at most once per run in the happy path, but every mark is
// idempotent: repeating a mark that already took effect is a no-op, not
// an error.
type Sink interface {
	// Resolve returns the registered subject, or an error matching
	// [errors.ErrUnknownSubject] if the ID is not registered.
	Resolve(subjectID string) (Subject, error)

	// MarkInProgress records that a run has started.
	MarkInProgress(subjectID string) error

	// MarkCompleted records a successful run with its final state.
	MarkCompleted(subjectID string, state *workflow.State) error

	// MarkFailed records a failed run with its final state and reason.
	MarkFailed(subjectID string, state *workflow.State, reason string) error
}

// Checkpointer is optionally implemented by sinks that can persist
// per-phase artifacts while a run progresses. Engines discover it by
// type assertion; sinks without it simply skip checkpoints.
type Checkpointer interface {
	PersistPhaseArtifact(subjectID, phase string, result workflow.PhaseResult) error
}
