package pipeline

import (
	"context"
	"sync"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// Run is a handle to a single in-flight or finished pipeline run. The
// engine goroutine owns the underlying state; the handle hands out deep
// copies so observers never race with the run.
type Run struct {
	subjectID string

	mu    sync.Mutex
	state *workflow.State
	err   error

	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(subjectID, blueprintName string, cancel context.CancelFunc) *Run {
	return &Run{
		subjectID: subjectID,
		state:     workflow.NewState(subjectID, blueprintName),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// SubjectID returns the subject this run operates on.
func (r *Run) SubjectID() string { return r.subjectID }

// Done returns a channel that is closed when the run finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the run's terminal error, or nil for a successful run.
// Meaningful once [Run.Done] is closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns a snapshot of the run state. Safe to call while the run
// is in flight; mid-phase capability progress is visible through the
// snapshot's status board.
func (r *Run) State() *workflow.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Cancel asks the run to stop. In-flight sub-tasks observe the
// cancellation through their invocation contexts and come back as
// timeout failures; the run then finishes as failed. Safe to call more
// than once and after the run has finished.
func (r *Run) Cancel() { r.cancel() }

// finish closes the done channel. Called exactly once by the engine.
func (r *Run) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// The helpers below are the engine's only access to the state. The
// engine goroutine is the sole writer; the lock exists so that State
// snapshots taken from other goroutines see a consistent view.

func (r *Run) stage() workflow.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Stage
}

func (r *Run) advance(to workflow.Stage, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.AdvanceTo(to, reason)
}

func (r *Run) prior() map[string]map[string]capability.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.PriorOutputs()
}

// board returns the live status board. The board is internally locked,
// so sub-task workers may update it while snapshots are being taken.
func (r *Run) board() *workflow.StatusBoard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status
}

// applyPhase merges a joined phase result. This is the run's single
// merge point; it always runs on the engine goroutine after every
// sub-task of the phase has reported.
func (r *Run) applyPhase(result workflow.PhaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ApplyPhase(result)
}

func (r *Run) recordError(rec workflow.ErrorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.RecordError(rec)
}

func (r *Run) complete(reason string) (*workflow.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.state.Complete(reason); err != nil {
		return nil, err
	}
	return r.state.Clone(), nil
}

func (r *Run) fail(reason string) *workflow.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Failing from a terminal stage cannot happen in the engine's run
	// loop; if it ever does, keep the terminal stage and hand back the
	// state as-is.
	_ = r.state.Fail(reason)
	return r.state.Clone()
}
