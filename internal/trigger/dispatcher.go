package trigger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
	"github.com/gauntlet-ci/gauntlet/internal/pipeline"
)

// Policy decides what happens to a run request for a subject whose run
// is still active.
type Policy string

const (
	// PolicyReject refuses the request; the caller sees the engine's
	// run-active error.
	PolicyReject Policy = "reject"

	// PolicyQueue parks the request and starts it once the active run
	// finishes. Requests for the same subject collapse into one pending
	// run.
	PolicyQueue Policy = "queue"
)

// Valid reports whether the policy is a known value.
func (p Policy) Valid() bool {
	return p == PolicyReject || p == PolicyQueue
}

// Disposition tells a submitter what happened to its request.
type Disposition string

const (
	// DispositionStarted means a run was launched immediately.
	DispositionStarted Disposition = "started"

	// DispositionQueued means the request waits behind the active run.
	DispositionQueued Disposition = "queued"

	// DispositionRejected means the request was refused.
	DispositionRejected Disposition = "rejected"
)

// DispatcherConfig holds the dispatcher's collaborators.
type DispatcherConfig struct {
	// Engine launches the runs.
	Engine *pipeline.Engine

	// Bus receives trigger admission events.
	Bus *event.Bus

	// Policy for busy subjects. Defaults to PolicyReject.
	Policy Policy

	// Logger is optional; nil means no logging.
	Logger *logging.Logger
}

// Dispatcher admits run requests into the engine, applying the busy
// policy when a subject's run is still in flight.
type Dispatcher struct {
	engine *pipeline.Engine
	bus    *event.Bus
	logger *logging.Logger
	policy Policy

	mu      sync.Mutex
	pending map[string]bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Engine == nil {
		return nil, errors.New("trigger: Engine is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("trigger: Bus is required")
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyReject
	}
	if !cfg.Policy.Valid() {
		return nil, fmt.Errorf("trigger: unknown policy %q", cfg.Policy)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}

	return &Dispatcher{
		engine:  cfg.Engine,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
		policy:  cfg.Policy,
		pending: make(map[string]bool),
		stopCh:  make(chan struct{}),
	}, nil
}

// Submit requests a run for the subject. The source labels where the
// request came from ("cli", "spool") for events and logs.
//
// A request for an idle subject starts immediately. A request for a
// busy subject is rejected or queued per the policy; queued requests
// for the same subject collapse into a single pending run.
func (d *Dispatcher) Submit(ctx context.Context, subjectID, source string) (Disposition, error) {
	_, err := d.engine.Start(ctx, subjectID)
	if err == nil {
		d.bus.Publish(event.NewTriggerAcceptedEvent(subjectID, source))
		d.logger.Info("trigger accepted", "subject", subjectID, "source", source)
		return DispositionStarted, nil
	}

	if !errors.Is(err, errors.ErrRunActive) {
		d.bus.Publish(event.NewTriggerRejectedEvent(subjectID, err.Error()))
		d.logger.Warn("trigger rejected", "subject", subjectID, "source", source, "error", err)
		return DispositionRejected, err
	}

	if d.policy == PolicyQueue {
		if d.enqueue(subjectID, source) {
			d.logger.Info("trigger queued", "subject", subjectID, "source", source)
		}
		d.bus.Publish(event.NewTriggerQueuedEvent(subjectID, 1))
		return DispositionQueued, nil
	}

	d.bus.Publish(event.NewTriggerRejectedEvent(subjectID, "a run is already active"))
	d.logger.Warn("trigger rejected, subject busy", "subject", subjectID, "source", source)
	return DispositionRejected, err
}

// Pending returns the subjects with a queued run, sorted.
func (d *Dispatcher) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.pending))
	for id := range d.pending {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops the dispatcher's queue waiters. Queued requests that have
// not started yet are dropped. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stopCh)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// enqueue marks the subject pending and spawns the waiter. Returns
// false when a run is already queued for the subject.
func (d *Dispatcher) enqueue(subjectID, source string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.pending[subjectID] {
		return false
	}
	d.pending[subjectID] = true
	d.wg.Add(1)
	go d.waitAndStart(subjectID, source)
	return true
}

// waitAndStart blocks until the subject's active run finishes, then
// starts the queued one.
func (d *Dispatcher) waitAndStart(subjectID, source string) {
	defer d.wg.Done()

	if active, ok := d.engine.Get(subjectID); ok {
		select {
		case <-active.Done():
		case <-d.stopCh:
			d.clearPending(subjectID)
			return
		}
	}

	// Queued runs outlive the submitting call, so they start under a
	// fresh context; their lifetime is bounded by the engine.
	_, err := d.engine.Start(context.Background(), subjectID)
	d.clearPending(subjectID)

	if err != nil {
		// Someone else took the slot first; that run covers this
		// trigger.
		reason := "superseded by a newer run"
		if !errors.Is(err, errors.ErrRunActive) {
			reason = err.Error()
		}
		d.bus.Publish(event.NewTriggerRejectedEvent(subjectID, reason))
		d.logger.Warn("queued trigger dropped", "subject", subjectID, "reason", reason)
		return
	}

	d.bus.Publish(event.NewTriggerAcceptedEvent(subjectID, source))
	d.logger.Info("queued trigger started", "subject", subjectID, "source", source)
}

func (d *Dispatcher) clearPending(subjectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, subjectID)
}
