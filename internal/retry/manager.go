// Package retry tracks invocation attempts for sub-tasks during a run.
//
// Only transient failures are eligible for another attempt; timeouts and
// permanent failures are recorded and left alone. The manager keeps the
// attempt history so that run reports can show what was retried and why.
package retry

import (
	"sync"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
)

// SubtaskState tracks the attempts of one sub-task.
type SubtaskState struct {
	Phase     string                 `json:"phase"`
	Subtask   string                 `json:"subtask"`
	Attempts  int                    `json:"attempts"`
	Succeeded bool                   `json:"succeeded,omitempty"`
	LastKind  capability.FailureKind `json:"last_kind,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
	Durations []time.Duration        `json:"durations,omitempty"` // per attempt
}

// Retries returns the number of repeated attempts.
func (s *SubtaskState) Retries() int {
	if s.Attempts <= 1 {
		return 0
	}
	return s.Attempts - 1
}

// Manager manages retry state for one run. It is safe for concurrent use
// by the sub-task workers of a phase.
type Manager struct {
	mu         sync.RWMutex
	maxRetries int
	states     map[string]*SubtaskState
}

// NewManager creates a manager allowing up to maxRetries repeated
// attempts per sub-task. Zero disables retries entirely.
func NewManager(maxRetries int) *Manager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Manager{
		maxRetries: maxRetries,
		states:     make(map[string]*SubtaskState),
	}
}

func key(phase, subtask string) string {
	return phase + "/" + subtask
}

// Record notes the outcome of one invocation attempt.
func (m *Manager) Record(phase, subtask string, outcome capability.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(phase, subtask)
	state, exists := m.states[k]
	if !exists {
		state = &SubtaskState{Phase: phase, Subtask: subtask}
		m.states[k] = state
	}

	state.Attempts++
	state.Durations = append(state.Durations, outcome.Duration)
	if outcome.Succeeded() {
		state.Succeeded = true
		state.LastKind = ""
		state.LastError = ""
		return
	}
	state.LastKind = outcome.Failure.Kind
	state.LastError = outcome.Failure.Message
}

// ShouldRetry reports whether the sub-task's last attempt failed
// transiently and attempts remain.
func (m *Manager) ShouldRetry(phase, subtask string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[key(phase, subtask)]
	if !exists || state.Succeeded {
		return false
	}
	if state.LastKind != capability.KindTransient {
		return false
	}
	return state.Retries() < m.maxRetries
}

// Attempts returns how many attempts the sub-task has made.
func (m *Manager) Attempts(phase, subtask string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[key(phase, subtask)]
	if !exists {
		return 0
	}
	return state.Attempts
}

// PhaseRetries returns the total repeated attempts across a phase's
// sub-tasks, for the phase result's retry counter.
func (m *Manager) PhaseRetries(phase string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, state := range m.states {
		if state.Phase == phase {
			total += state.Retries()
		}
	}
	return total
}

// Exhausted returns the sub-tasks that failed transiently and used up
// every attempt, in no particular order.
func (m *Manager) Exhausted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for k, state := range m.states {
		if !state.Succeeded && state.LastKind == capability.KindTransient && state.Retries() >= m.maxRetries {
			out = append(out, k)
		}
	}
	return out
}

// States returns a deep copy of all attempt states keyed by
// "phase/subtask".
func (m *Manager) States() map[string]*SubtaskState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*SubtaskState, len(m.states))
	for k, v := range m.states {
		cp := *v
		if v.Durations != nil {
			cp.Durations = make([]time.Duration, len(v.Durations))
			copy(cp.Durations, v.Durations)
		}
		out[k] = &cp
	}
	return out
}

// Reset clears the state of one sub-task.
func (m *Manager) Reset(phase, subtask string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key(phase, subtask))
}
