package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gauntlet-ci/gauntlet/internal/blueprint"
	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
	"github.com/gauntlet-ci/gauntlet/internal/retry"
	"github.com/gauntlet-ci/gauntlet/internal/sink"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// Config holds the collaborators every engine needs.
type Config struct {
	// Registry resolves capability names to implementations.
	Registry *capability.Registry

	// Sink records run progress for registered subjects.
	Sink sink.Sink

	// Blueprint declares the phases every run executes.
	Blueprint *blueprint.Blueprint

	// Bus carries run lifecycle and capability status events.
	Bus *event.Bus
}

// Engine drives registered subjects through the pipeline stages a
// blueprint declares. Runs for different subjects proceed concurrently;
// at most one run per subject is active at a time.
type Engine struct {
	cfg     Config
	ecfg    engineConfig
	invoker *capability.Invoker

	mu     sync.Mutex
	active map[string]*Run
	closed bool
	wg     sync.WaitGroup
}

// New builds an Engine after validating its collaborators and the
// blueprint. A blueprint that fails validation or references an
// unregistered capability is rejected here, before any run can start.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("pipeline: Registry is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: Sink is required")
	}
	if cfg.Blueprint == nil {
		return nil, errors.New("pipeline: Blueprint is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("pipeline: Bus is required")
	}

	if err := cfg.Blueprint.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Registry.Ensure(cfg.Blueprint.CapabilityNames()...); err != nil {
		return nil, errors.NewPolicyError("blueprint references an unregistered capability", err).
			WithBlueprint(cfg.Blueprint.Name)
	}

	ecfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&ecfg)
	}

	inv, err := capability.NewInvoker(cfg.Registry,
		capability.WithLogger(ecfg.logger),
		capability.WithDefaultTimeout(ecfg.subtaskTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		ecfg:    ecfg,
		invoker: inv,
		active:  make(map[string]*Run),
	}, nil
}

// Start launches a run for the subject and returns its handle without
// waiting. A second request for a subject whose run is still in flight
// is rejected with an error matching [errors.ErrRunActive].
func (e *Engine) Start(ctx context.Context, subjectID string) (*Run, error) {
	subject, err := e.cfg.Sink.Resolve(subjectID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("pipeline: engine is closed")
	}
	if _, busy := e.active[subject.ID]; busy {
		e.mu.Unlock()
		return nil, errors.NewRunError(
			fmt.Sprintf("a run is already active for subject %s", subject.ID),
			errors.ErrRunActive,
		).WithSubject(subject.ID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := newRun(subject.ID, e.cfg.Blueprint.Name, cancel)
	e.active[subject.ID] = r
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		err := e.execute(runCtx, r)
		cancel()

		// Free the slot before closing the handle so a waiter that sees
		// Done can start the subject's next run immediately.
		e.mu.Lock()
		delete(e.active, subject.ID)
		e.mu.Unlock()

		r.finish(err)
	}()

	return r, nil
}

// Run executes a full run for the subject and blocks until it reaches a
// terminal stage. The returned state is the final snapshot; on failure
// the error explains why while the state still carries everything that
// was recorded up to the halt.
func (e *Engine) Run(ctx context.Context, subjectID string) (*workflow.State, error) {
	r, err := e.Start(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	<-r.Done()
	return r.State(), r.Err()
}

// Active returns the subject IDs with runs in flight, sorted.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the handle of the subject's active run, if any.
func (e *Engine) Get(subjectID string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.active[subjectID]
	return r, ok
}

// Close cancels all active runs, waits for them to finish, and rejects
// further Start calls. Safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for _, r := range e.active {
		r.Cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// execute drives one run from start to a terminal stage. It returns the
// run's terminal error, nil on success.
func (e *Engine) execute(ctx context.Context, r *Run) error {
	log := e.ecfg.logger.WithRun(r.subjectID)
	bp := e.cfg.Blueprint

	log.Info("run started", "blueprint", bp.Name, "phases", len(bp.Phases))
	e.cfg.Bus.Publish(event.NewRunStartedEvent(r.subjectID, bp.Name, len(bp.Phases)))

	if err := e.cfg.Sink.MarkInProgress(r.subjectID); err != nil {
		return e.fail(r, log, 0, errors.NewRunError("marking run in progress failed", err).WithSubject(r.subjectID))
	}

	retries := retry.NewManager(e.ecfg.maxRetries)
	runner := &phaseRunner{
		invoker:      e.invoker,
		bus:          e.cfg.Bus,
		logger:       log,
		phaseTimeout: e.ecfg.phaseTimeout,
	}

	phasesRun := 0
	for _, phase := range bp.Phases {
		stage := workflow.Stage(phase.StageName())
		prev := r.stage()
		if err := r.advance(stage, fmt.Sprintf("phase %s starting", phase.Name)); err != nil {
			return e.fail(r, log, phasesRun, errors.WrapDefect(stage.String(), err))
		}
		e.cfg.Bus.Publish(event.NewStageChangedEvent(r.subjectID, event.Stage(prev), event.Stage(stage)))

		plog := log.WithStage(stage.String())
		plog.Info("phase started", "phase", phase.Name, "subtasks", len(phase.Subtasks), "policy", string(phase.Policy))

		result, defect := runner.executePhase(ctx, r.subjectID, phase, r.prior(), r.board(), retries)
		if defect != nil {
			return e.fail(r, log, phasesRun, defect)
		}
		phasesRun++

		// The single merge point: every sub-task of the phase has
		// reported by now, and only this goroutine touches the state.
		if err := r.applyPhase(result); err != nil {
			return e.fail(r, log, phasesRun, errors.WrapDefect(stage.String(), err))
		}

		e.checkpoint(r, phase.Name, result, plog)

		failures := result.FailureCount()
		plog.Info("phase finished", "phase", phase.Name, "failures", failures, "retries", result.Retries, "duration", result.Duration)

		if ctx.Err() != nil {
			return e.fail(r, log, phasesRun, errors.NewRunError("run canceled", errors.ErrRunCanceled).
				WithSubject(r.subjectID).WithStage(stage.String()))
		}

		if failures > 0 {
			if phase.Policy == blueprint.PolicyAllMustSucceed {
				return e.fail(r, log, phasesRun, errors.NewRunError(
					fmt.Sprintf("phase %s recorded %d sub-task failures", phase.Name, failures),
					errors.ErrRunFailed,
				).WithSubject(r.subjectID).WithStage(stage.String()))
			}
			plog.Warn("continuing past sub-task failures", "phase", phase.Name, "failures", failures)
		}
	}

	return e.completeRun(r, log, phasesRun)
}

// completeRun finishes a run whose every phase has merged.
func (e *Engine) completeRun(r *Run, log *logging.Logger, phasesRun int) error {
	prev := r.stage()
	final, err := r.complete("all phases finished")
	if err != nil {
		return e.fail(r, log, phasesRun, errors.WrapDefect(workflow.StageCompleted.String(), err))
	}

	if err := e.cfg.Sink.MarkCompleted(r.subjectID, final); err != nil {
		log.Error("recording completed run in sink failed", "error", err)
	}

	e.cfg.Bus.Publish(event.NewStageChangedEvent(r.subjectID, event.Stage(prev), event.StageCompleted))
	e.cfg.Bus.Publish(event.NewRunCompletedEvent(r.subjectID, true, event.StageCompleted, phasesRun, len(final.Errors), final.Elapsed()))
	log.Info("run completed", "phases", phasesRun, "failures", len(final.Errors), "duration", final.Elapsed())
	return nil
}

// fail moves the run to the failed stage, notifies the sink, and
// publishes terminal events. It returns cause so callers can hand the
// terminal error straight back.
func (e *Engine) fail(r *Run, log *logging.Logger, phasesRun int, cause error) error {
	prev := r.stage()
	reason := cause.Error()
	final := r.fail(reason)

	if err := e.cfg.Sink.MarkFailed(r.subjectID, final, reason); err != nil {
		log.Error("recording failed run in sink failed", "error", err)
	}

	e.cfg.Bus.Publish(event.NewStageChangedEvent(r.subjectID, event.Stage(prev), event.StageFailed))
	e.cfg.Bus.Publish(event.NewRunCompletedEvent(r.subjectID, false, event.StageFailed, phasesRun, len(final.Errors), final.Elapsed()))
	log.Error("run failed", "reason", reason, "phases", phasesRun)
	return cause
}

// checkpoint persists the phase artifact when the sink supports it.
// Checkpoint trouble never fails a run.
func (e *Engine) checkpoint(r *Run, phase string, result workflow.PhaseResult, log *logging.Logger) {
	cp, ok := e.cfg.Sink.(sink.Checkpointer)
	if !ok {
		return
	}
	if err := cp.PersistPhaseArtifact(r.subjectID, phase, result); err != nil {
		log.Warn("phase checkpoint failed", "phase", phase, "error", err)
		return
	}
	e.cfg.Bus.Publish(event.NewCheckpointSavedEvent(r.subjectID, phase))
}
