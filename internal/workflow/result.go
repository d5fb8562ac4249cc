package workflow

import (
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
)

// SubtaskResult is the recorded outcome of one sub-task invocation
// within a phase.
type SubtaskResult struct {
	// Subtask is the blueprint sub-task name.
	Subtask string `json:"subtask"`

	// Capability is the capability the sub-task invoked.
	Capability string `json:"capability"`

	// Payload is set when the invocation succeeded.
	Payload capability.Payload `json:"payload,omitempty"`

	// Failure is set when the invocation failed.
	Failure *capability.Failure `json:"failure,omitempty"`

	// Duration is the wall-clock time of the final attempt.
	Duration time.Duration `json:"duration"`

	// Attempts counts invocation attempts including retries.
	Attempts int `json:"attempts"`
}

// Failed reports whether the sub-task ended in a failure.
func (r SubtaskResult) Failed() bool {
	return r.Failure != nil
}

// PhaseResult aggregates the sub-task outcomes of one executed phase.
// Results are ordered by completion, not by declaration, so two runs of
// the same phase may list them differently.
type PhaseResult struct {
	// Phase is the blueprint phase name.
	Phase string `json:"phase"`

	// Stage is the lifecycle stage the phase belongs to.
	Stage Stage `json:"stage"`

	// Results holds one entry per sub-task in completion order.
	Results []SubtaskResult `json:"results"`

	// Duration is the wall-clock time of the whole phase, including
	// concurrent sub-tasks that overlapped.
	Duration time.Duration `json:"duration"`

	// Retries counts transient retries performed across all sub-tasks.
	Retries int `json:"retries"`
}

// FailureCount returns the number of failed sub-tasks.
func (r PhaseResult) FailureCount() int {
	count := 0
	for _, sub := range r.Results {
		if sub.Failed() {
			count++
		}
	}
	return count
}

// Succeeded reports whether every sub-task in the phase succeeded.
func (r PhaseResult) Succeeded() bool {
	return r.FailureCount() == 0
}

// FailedSubtasks returns the failing results in completion order.
func (r PhaseResult) FailedSubtasks() []SubtaskResult {
	var failed []SubtaskResult
	for _, sub := range r.Results {
		if sub.Failed() {
			failed = append(failed, sub)
		}
	}
	return failed
}
