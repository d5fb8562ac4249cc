package sink

import (
	"sort"
	"sync"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

var _ Sink = (*Memory)(nil)

// Memory is an in-process sink holding subjects and final run states in
// maps. It backs tests and ephemeral runs; nothing survives the process.
type Memory struct {
	mu       sync.RWMutex
	subjects map[string]Subject
	states   map[string]*workflow.State
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		subjects: make(map[string]Subject),
		states:   make(map[string]*workflow.State),
	}
}

// Add registers a subject.
func (m *Memory) Add(subject Subject) error {
	if subject.ID == "" {
		return errors.NewValidationError("subject ID is required").WithField("id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subjects[subject.ID]; exists {
		return errors.NewAlreadyExistsError("subject", subject.ID)
	}
	if subject.Status == "" {
		subject.Status = RunStatusRegistered
	}
	if subject.RegisteredAt.IsZero() {
		subject.RegisteredAt = time.Now()
	}
	m.subjects[subject.ID] = subject
	return nil
}

// Remove deletes a subject and any recorded state.
func (m *Memory) Remove(subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subjects[subjectID]; !exists {
		return errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}
	delete(m.subjects, subjectID)
	delete(m.states, subjectID)
	return nil
}

// List returns all subjects sorted by ID.
func (m *Memory) List() []Subject {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the registered subject.
func (m *Memory) Resolve(subjectID string) (Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subject, exists := m.subjects[subjectID]
	if !exists {
		return Subject{}, errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}
	return subject, nil
}

// MarkInProgress records that a run has started.
func (m *Memory) MarkInProgress(subjectID string) error {
	return m.setStatus(subjectID, RunStatusInProgress, "", nil)
}

// MarkCompleted records a successful run.
func (m *Memory) MarkCompleted(subjectID string, state *workflow.State) error {
	return m.setStatus(subjectID, RunStatusCompleted, "", state)
}

// MarkFailed records a failed run.
func (m *Memory) MarkFailed(subjectID string, state *workflow.State, reason string) error {
	return m.setStatus(subjectID, RunStatusFailed, reason, state)
}

func (m *Memory) setStatus(subjectID string, status RunStatus, reason string, state *workflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subject, exists := m.subjects[subjectID]
	if !exists {
		return errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}

	if subject.Status != status || subject.Reason != reason {
		subject.Status = status
		subject.Reason = reason
		subject.UpdatedAt = time.Now()
		m.subjects[subjectID] = subject
	}
	if state != nil {
		m.states[subjectID] = state.Clone()
	}
	return nil
}

// State returns the last recorded final state for a subject, or nil.
func (m *Memory) State(subjectID string) *workflow.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[subjectID]
	if !exists {
		return nil
	}
	return state.Clone()
}
