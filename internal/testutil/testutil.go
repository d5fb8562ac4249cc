// Package testutil provides testing utilities for gauntlet tests:
// scriptable capabilities, a recording sink, and event collection.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/sink"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// Counter counts capability invocations by name. Safe for concurrent
// use, so fan-out sub-tasks can share one.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Add records one invocation of the named capability.
func (c *Counter) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

// Count returns how often the named capability was invoked.
func (c *Counter) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Total returns the invocation count across all capabilities.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// StaticCapability returns a capability that records its invocation and
// succeeds with the given payload.
func StaticCapability(counter *Counter, name string, payload capability.Payload) capability.Func {
	return func(ctx context.Context, req capability.Request) (capability.Payload, error) {
		counter.Add(name)
		return payload.Clone(), nil
	}
}

// FailingCapability returns a capability that records its invocation
// and fails with the given error. Wrap the error with
// [errors.Transient] to make the failure retryable.
func FailingCapability(counter *Counter, name string, err error) capability.Func {
	return func(ctx context.Context, req capability.Request) (capability.Payload, error) {
		counter.Add(name)
		return nil, err
	}
}

// FlakyCapability returns a capability that fails transiently the given
// number of times, then succeeds with the payload.
func FlakyCapability(counter *Counter, name string, failures int, payload capability.Payload) capability.Func {
	var mu sync.Mutex
	remaining := failures
	return func(ctx context.Context, req capability.Request) (capability.Payload, error) {
		counter.Add(name)
		mu.Lock()
		defer mu.Unlock()
		if remaining > 0 {
			remaining--
			return nil, errors.Transient(fmt.Errorf("flaky failure, %d left", remaining))
		}
		return payload.Clone(), nil
	}
}

// BlockingCapability returns a capability that records its invocation
// and then blocks until its context is canceled, simulating a hung
// tool.
func BlockingCapability(counter *Counter, name string) capability.Func {
	return func(ctx context.Context, req capability.Request) (capability.Payload, error) {
		counter.Add(name)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// PanickingCapability returns a capability that panics with the given
// value.
func PanickingCapability(counter *Counter, name string, value any) capability.Func {
	return func(ctx context.Context, req capability.Request) (capability.Payload, error) {
		counter.Add(name)
		panic(value)
	}
}

// NewRegistry builds a capability registry from name to function,
// failing the test on registration errors.
func NewRegistry(t *testing.T, caps map[string]capability.Func) *capability.Registry {
	t.Helper()

	reg := capability.NewRegistry()
	for name, fn := range caps {
		if err := reg.Register(name, "test capability", fn); err != nil {
			t.Fatalf("failed to register capability %s: %v", name, err)
		}
	}
	return reg
}

// MarkRecord is one sink mark observed by a RecordingSink.
type MarkRecord struct {
	Mark    string // "in_progress", "completed", or "failed"
	Subject string
	Reason  string
}

// ArtifactRecord is one checkpointed phase observed by a RecordingSink.
type ArtifactRecord struct {
	Subject string
	Phase   string
	Result  workflow.PhaseResult
}

// RecordingSink is an in-memory [sink.Sink] and [sink.Checkpointer]
// that remembers every mark and checkpoint in call order.
type RecordingSink struct {
	mu        sync.Mutex
	subjects  map[string]sink.Subject
	states    map[string]*workflow.State
	marks     []MarkRecord
	artifacts []ArtifactRecord

	// MarkErr, when set, is returned by every mark call.
	MarkErr error
}

var (
	_ sink.Sink         = (*RecordingSink)(nil)
	_ sink.Checkpointer = (*RecordingSink)(nil)
)

// NewRecordingSink creates a RecordingSink with the given subjects
// registered.
func NewRecordingSink(subjectIDs ...string) *RecordingSink {
	s := &RecordingSink{
		subjects: make(map[string]sink.Subject, len(subjectIDs)),
		states:   make(map[string]*workflow.State),
	}
	for _, id := range subjectIDs {
		s.subjects[id] = sink.Subject{
			ID:           id,
			Status:       sink.RunStatusRegistered,
			RegisteredAt: time.Now(),
		}
	}
	return s
}

// Resolve returns the registered subject.
func (s *RecordingSink) Resolve(subjectID string) (sink.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return sink.Subject{}, errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}
	return subject, nil
}

// MarkInProgress records the mark.
func (s *RecordingSink) MarkInProgress(subjectID string) error {
	return s.mark("in_progress", subjectID, nil, "")
}

// MarkCompleted records the mark and keeps the final state.
func (s *RecordingSink) MarkCompleted(subjectID string, state *workflow.State) error {
	return s.mark("completed", subjectID, state, "")
}

// MarkFailed records the mark, the reason, and the final state.
func (s *RecordingSink) MarkFailed(subjectID string, state *workflow.State, reason string) error {
	return s.mark("failed", subjectID, state, reason)
}

func (s *RecordingSink) mark(mark, subjectID string, state *workflow.State, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkErr != nil {
		return s.MarkErr
	}
	if _, ok := s.subjects[subjectID]; !ok {
		return errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}
	s.marks = append(s.marks, MarkRecord{Mark: mark, Subject: subjectID, Reason: reason})
	if state != nil {
		s.states[subjectID] = state.Clone()
	}
	return nil
}

// PersistPhaseArtifact records the checkpoint.
func (s *RecordingSink) PersistPhaseArtifact(subjectID, phase string, result workflow.PhaseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, ArtifactRecord{Subject: subjectID, Phase: phase, Result: result})
	return nil
}

// Marks returns every recorded mark in call order.
func (s *RecordingSink) Marks() []MarkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MarkRecord, len(s.marks))
	copy(out, s.marks)
	return out
}

// MarksFor returns the mark names recorded for one subject, in order.
func (s *RecordingSink) MarksFor(subjectID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.marks {
		if m.Subject == subjectID {
			out = append(out, m.Mark)
		}
	}
	return out
}

// Artifacts returns every recorded checkpoint in call order.
func (s *RecordingSink) Artifacts() []ArtifactRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ArtifactRecord, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// State returns the last state recorded for the subject, or nil.
func (s *RecordingSink) State(subjectID string) *workflow.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[subjectID]
}

// EventCollector records every event published on a bus.
type EventCollector struct {
	mu     sync.Mutex
	events []event.Event
}

// CollectEvents subscribes a new collector to all events on the bus.
func CollectEvents(bus *event.Bus) *EventCollector {
	c := &EventCollector{}
	bus.SubscribeAll(func(e event.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
	})
	return c
}

// Events returns the collected events in publication order.
func (c *EventCollector) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

// CountType returns how many collected events have the given type.
func (c *EventCollector) CountType(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.events {
		if e.EventType() == eventType {
			count++
		}
	}
	return count
}

// WaitClosed waits for ch to close, failing the test after the timeout.
func WaitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for %s", timeout, what)
	}
}
