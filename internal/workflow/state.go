package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
)

// PhaseOutput is the merged payload map of one executed phase, keyed by
// sub-task name. Failed sub-tasks contribute error records instead of
// entries here.
type PhaseOutput map[string]capability.Payload

// ErrorRecord captures one failure encountered during a run. Records are
// append-only; a completed run may carry a non-empty error list when
// best-effort phases tolerated failures.
type ErrorRecord struct {
	Phase      string    `json:"phase"`
	Subtask    string    `json:"subtask,omitempty"`
	Capability string    `json:"capability,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Message    string    `json:"message"`
	Cause      string    `json:"cause,omitempty"`
	At         time.Time `json:"at"`
}

// Metrics aggregates run-level execution counters. TotalDuration always
// equals the sum of PhaseDurations; both are only written through
// RecordPhase.
type Metrics struct {
	PhaseDurations map[string]time.Duration `json:"phase_durations"`
	TotalDuration  time.Duration            `json:"total_duration"`
	SubtasksRun    int                      `json:"subtasks_run"`
	SubtasksFailed int                      `json:"subtasks_failed"`
	Retries        int                      `json:"retries"`
}

// RecordPhase folds a phase result into the metrics.
func (m *Metrics) RecordPhase(result PhaseResult) {
	if m.PhaseDurations == nil {
		m.PhaseDurations = make(map[string]time.Duration)
	}
	m.PhaseDurations[result.Phase] += result.Duration
	m.TotalDuration += result.Duration
	m.SubtasksRun += len(result.Results)
	m.SubtasksFailed += result.FailureCount()
	m.Retries += result.Retries
}

// DurationSum returns the sum of all per-phase durations.
func (m *Metrics) DurationSum() time.Duration {
	var sum time.Duration
	for _, d := range m.PhaseDurations {
		sum += d
	}
	return sum
}

// clone returns a deep copy of the metrics.
func (m Metrics) clone() Metrics {
	out := m
	if m.PhaseDurations != nil {
		out.PhaseDurations = make(map[string]time.Duration, len(m.PhaseDurations))
		for k, v := range m.PhaseDurations {
			out.PhaseDurations[k] = v
		}
	}
	return out
}

// CapabilityStatus tracks where a sub-task's capability is in its
// invocation lifecycle.
type CapabilityStatus string

const (
	StatusIdle      CapabilityStatus = "idle"
	StatusRunning   CapabilityStatus = "running"
	StatusCompleted CapabilityStatus = "completed"
	StatusFailed    CapabilityStatus = "failed"
)

// StatusBoard is the one piece of run state shared across goroutines.
// Sub-task workers flip their own entries while observers poll
// snapshots, so access is guarded here rather than in State.
type StatusBoard struct {
	mu      sync.RWMutex
	entries map[string]CapabilityStatus
}

// NewStatusBoard creates an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		entries: make(map[string]CapabilityStatus),
	}
}

func boardKey(phase, subtask string) string {
	return phase + "/" + subtask
}

// Seed registers a phase's sub-tasks as idle before dispatch so that
// observers see the full roster from the start of the phase.
func (b *StatusBoard) Seed(phase string, subtasks []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subtask := range subtasks {
		b.entries[boardKey(phase, subtask)] = StatusIdle
	}
}

// Set records the status of one sub-task.
func (b *StatusBoard) Set(phase, subtask string, status CapabilityStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[boardKey(phase, subtask)] = status
}

// Get returns the status of one sub-task.
func (b *StatusBoard) Get(phase, subtask string) (CapabilityStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	status, ok := b.entries[boardKey(phase, subtask)]
	return status, ok
}

// Snapshot returns a copy of all entries keyed by "phase/subtask".
func (b *StatusBoard) Snapshot() map[string]CapabilityStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]CapabilityStatus, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes the board as its snapshot map.
func (b *StatusBoard) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Snapshot())
}

// UnmarshalJSON restores the board from a snapshot map.
func (b *StatusBoard) UnmarshalJSON(data []byte) error {
	entries := make(map[string]CapabilityStatus)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = entries
	return nil
}

// clone returns an independent copy of the board.
func (b *StatusBoard) clone() *StatusBoard {
	return &StatusBoard{entries: b.Snapshot()}
}

// State is the complete record of one pipeline run for one subject.
//
// State is confined to the engine goroutine while a run executes; all
// merging happens single-threaded after sub-task joins, and external
// observers only ever receive deep copies via [State.Clone]. The one
// exception is [State.Status], which is internally synchronized so that
// capability progress can be polled mid-phase.
type State struct {
	// SubjectID identifies the registered subject this run operates on.
	SubjectID string `json:"subject_id"`

	// Blueprint is the name of the blueprint driving the run.
	Blueprint string `json:"blueprint"`

	// Stage is the subject's current lifecycle stage.
	Stage Stage `json:"stage"`

	// Results maps executed phase names to their merged outputs.
	// Entries are only ever added, never replaced.
	Results map[string]PhaseOutput `json:"results"`

	// Errors lists every failure recorded during the run.
	Errors []ErrorRecord `json:"errors,omitempty"`

	// Metrics aggregates durations and counters across phases.
	Metrics Metrics `json:"metrics"`

	// History is the ordered stage transition audit trail.
	History []Transition `json:"history"`

	// Status tracks per-sub-task capability progress.
	Status *StatusBoard `json:"capability_status,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// NewState creates a fresh run state for a subject. The stage is unset
// until the first AdvanceTo.
func NewState(subjectID, blueprintName string) *State {
	return &State{
		SubjectID: subjectID,
		Blueprint: blueprintName,
		Results:   make(map[string]PhaseOutput),
		Status:    NewStatusBoard(),
		StartedAt: time.Now(),
	}
}

// AdvanceTo moves the run to the given stage, recording the transition.
// The first transition from the unset stage is always allowed; after
// that, moves must be valid per [ValidTransitions].
func (s *State) AdvanceTo(to Stage, reason string) error {
	if s.Stage != "" {
		if s.Stage.IsTerminal() {
			return errors.NewRunError(
				fmt.Sprintf("cannot leave terminal stage %s", s.Stage),
				errors.ErrTerminalStage,
			).WithSubject(s.SubjectID).WithStage(s.Stage.String())
		}
		if !CanTransition(s.Stage, to) {
			return errors.NewRunError(
				fmt.Sprintf("transition %s -> %s is not allowed", s.Stage, to),
				errors.ErrInvalidTransition,
			).WithSubject(s.SubjectID).WithStage(s.Stage.String())
		}
	}

	s.History = append(s.History, Transition{
		From:      s.Stage,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	s.Stage = to
	return nil
}

// Complete moves the run to the completed stage and stamps FinishedAt.
func (s *State) Complete(reason string) error {
	if err := s.AdvanceTo(StageCompleted, reason); err != nil {
		return err
	}
	s.FinishedAt = time.Now()
	return nil
}

// Fail moves the run to the failed stage and stamps FinishedAt.
func (s *State) Fail(reason string) error {
	if err := s.AdvanceTo(StageFailed, reason); err != nil {
		return err
	}
	s.FinishedAt = time.Now()
	return nil
}

// ApplyPhase merges a completed phase result into the state. This is the
// single merge point of a run: sub-task workers never touch State, they
// report results that land here after the phase joins.
//
// Each sub-task writes a distinct output slot; a duplicate phase or slot
// indicates a runner bug and is returned as an error for the engine to
// escalate.
func (s *State) ApplyPhase(result PhaseResult) error {
	if _, exists := s.Results[result.Phase]; exists {
		return fmt.Errorf("phase %s merged twice", result.Phase)
	}

	output := make(PhaseOutput, len(result.Results))
	for _, sub := range result.Results {
		if sub.Failed() {
			s.RecordError(ErrorRecord{
				Phase:      result.Phase,
				Subtask:    sub.Subtask,
				Capability: sub.Capability,
				Kind:       string(sub.Failure.Kind),
				Message:    sub.Failure.Message,
			})
			continue
		}
		if _, dup := output[sub.Subtask]; dup {
			return fmt.Errorf("phase %s produced two results for sub-task %s", result.Phase, sub.Subtask)
		}
		output[sub.Subtask] = sub.Payload
	}

	s.Results[result.Phase] = output
	s.Metrics.RecordPhase(result)
	return nil
}

// RecordError appends a failure record, stamping it if unstamped.
func (s *State) RecordError(rec ErrorRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	s.Errors = append(s.Errors, rec)
}

// Succeeded reports whether the run finished in the completed stage.
func (s *State) Succeeded() bool {
	return s.Stage == StageCompleted
}

// Elapsed returns the run's wall-clock time so far, or its final
// duration once finished.
func (s *State) Elapsed() time.Duration {
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// PriorOutputs returns the merged payloads of all phases executed so
// far, in the shape capability requests expect.
func (s *State) PriorOutputs() map[string]map[string]capability.Payload {
	out := make(map[string]map[string]capability.Payload, len(s.Results))
	for phase, output := range s.Results {
		payloads := make(map[string]capability.Payload, len(output))
		for subtask, payload := range output {
			payloads[subtask] = payload.Clone()
		}
		out[phase] = payloads
	}
	return out
}

// Clone returns a deep copy safe to hand to observers while the run
// continues mutating the original.
func (s *State) Clone() *State {
	out := &State{
		SubjectID:  s.SubjectID,
		Blueprint:  s.Blueprint,
		Stage:      s.Stage,
		Results:    make(map[string]PhaseOutput, len(s.Results)),
		Metrics:    s.Metrics.clone(),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
	for phase, output := range s.Results {
		cloned := make(PhaseOutput, len(output))
		for subtask, payload := range output {
			cloned[subtask] = payload.Clone()
		}
		out.Results[phase] = cloned
	}
	if s.Errors != nil {
		out.Errors = make([]ErrorRecord, len(s.Errors))
		copy(out.Errors, s.Errors)
	}
	if s.History != nil {
		out.History = make([]Transition, len(s.History))
		copy(out.History, s.History)
	}
	if s.Status != nil {
		out.Status = s.Status.clone()
	}
	return out
}
