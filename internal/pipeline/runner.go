package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/blueprint"
	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/event"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
	"github.com/gauntlet-ci/gauntlet/internal/retry"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// phaseRunner executes one phase at a time on behalf of the engine. It
// never touches run state: sub-task outcomes flow back to the engine in
// a PhaseResult, and the engine merges them after the join.
type phaseRunner struct {
	invoker      *capability.Invoker
	bus          *event.Bus
	logger       *logging.Logger
	phaseTimeout time.Duration
}

// executePhase runs every sub-task of the phase and joins on all of
// them. Sub-task failures are data on the result; the error return is
// reserved for runner defects, which the engine treats as fatal.
func (pr *phaseRunner) executePhase(
	ctx context.Context,
	subjectID string,
	phase blueprint.Phase,
	prior map[string]map[string]capability.Payload,
	board *workflow.StatusBoard,
	retries *retry.Manager,
) (result workflow.PhaseResult, defect error) {
	defer func() {
		if r := recover(); r != nil {
			defect = errors.NewDefectError(phase.Name, r)
		}
	}()

	start := time.Now()

	timeout := phase.Timeout.Std()
	if timeout <= 0 {
		timeout = pr.phaseTimeout
	}
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	board.Seed(phase.Name, phase.SubtaskNames())

	var results []workflow.SubtaskResult
	if phase.Sequential {
		results = pr.runSequential(phaseCtx, subjectID, phase, prior, board, retries)
	} else {
		results = pr.runParallel(phaseCtx, subjectID, phase, prior, board, retries)
	}

	return workflow.PhaseResult{
		Phase:    phase.Name,
		Stage:    workflow.Stage(phase.StageName()),
		Results:  results,
		Duration: time.Since(start),
		Retries:  retries.PhaseRetries(phase.Name),
	}, nil
}

// runParallel dispatches every sub-task at once and collects results in
// completion order. The invoker returns a prompt outcome for every
// dispatch even when a capability ignores its context, so the join
// never hangs: once the phase deadline passes, hung sub-tasks come back
// as timeout failures while finished siblings keep their payloads.
func (pr *phaseRunner) runParallel(
	ctx context.Context,
	subjectID string,
	phase blueprint.Phase,
	prior map[string]map[string]capability.Payload,
	board *workflow.StatusBoard,
	retries *retry.Manager,
) []workflow.SubtaskResult {
	resCh := make(chan workflow.SubtaskResult, len(phase.Subtasks))
	for _, sub := range phase.Subtasks {
		go func() {
			resCh <- pr.runSubtask(ctx, subjectID, phase, sub, clonePrior(prior), board, retries)
		}()
	}

	results := make([]workflow.SubtaskResult, 0, len(phase.Subtasks))
	for range phase.Subtasks {
		results = append(results, <-resCh)
	}
	return results
}

// runSequential executes sub-tasks strictly in declaration order. Each
// sub-task sees the outputs of its finished predecessors under the
// current phase's name, alongside prior phases. A failure does not stop
// the chain; later sub-tasks still run and simply find no output from
// the failed predecessor.
func (pr *phaseRunner) runSequential(
	ctx context.Context,
	subjectID string,
	phase blueprint.Phase,
	prior map[string]map[string]capability.Payload,
	board *workflow.StatusBoard,
	retries *retry.Manager,
) []workflow.SubtaskResult {
	results := make([]workflow.SubtaskResult, 0, len(phase.Subtasks))
	finished := make(map[string]capability.Payload, len(phase.Subtasks))

	for _, sub := range phase.Subtasks {
		if ctx.Err() != nil {
			results = append(results, pr.skipSubtask(subjectID, phase, sub, board))
			continue
		}

		chained := clonePrior(prior)
		if len(finished) > 0 {
			siblings := make(map[string]capability.Payload, len(finished))
			for name, payload := range finished {
				siblings[name] = payload.Clone()
			}
			chained[phase.Name] = siblings
		}

		res := pr.runSubtask(ctx, subjectID, phase, sub, chained, board, retries)
		results = append(results, res)
		if !res.Failed() {
			finished[res.Subtask] = res.Payload
		}
	}
	return results
}

// runSubtask invokes a sub-task's capability, retrying transient
// failures while the retry budget and the phase window allow. The
// returned result carries either a payload or a failure, never both.
func (pr *phaseRunner) runSubtask(
	ctx context.Context,
	subjectID string,
	phase blueprint.Phase,
	sub blueprint.Subtask,
	prior map[string]map[string]capability.Payload,
	board *workflow.StatusBoard,
	retries *retry.Manager,
) workflow.SubtaskResult {
	name := sub.CapabilityName()
	log := pr.logger.WithStage(phase.StageName()).WithCapability(name)

	board.Set(phase.Name, sub.Name, workflow.StatusRunning)
	pr.bus.Publish(event.NewCapabilityStatusEvent(subjectID, phase.Name, sub.Name, name, event.CapabilityRunning, ""))

	req := capability.Request{
		SubjectID: subjectID,
		Phase:     phase.Name,
		Subtask:   sub.Name,
		Params:    sub.Params,
		Prior:     prior,
	}

	var outcome capability.Outcome
	for {
		outcome = pr.invoker.Invoke(ctx, name, req, sub.Timeout.Std())
		retries.Record(phase.Name, sub.Name, outcome)
		if outcome.Succeeded() || ctx.Err() != nil || !retries.ShouldRetry(phase.Name, sub.Name) {
			break
		}
		log.Info("retrying sub-task after transient failure",
			"phase", phase.Name,
			"subtask", sub.Name,
			"attempt", retries.Attempts(phase.Name, sub.Name),
			"failure", outcome.Failure.Message,
		)
	}

	result := workflow.SubtaskResult{
		Subtask:    sub.Name,
		Capability: name,
		Payload:    outcome.Payload,
		Failure:    outcome.Failure,
		Duration:   outcome.Duration,
		Attempts:   retries.Attempts(phase.Name, sub.Name),
	}

	if result.Failed() {
		board.Set(phase.Name, sub.Name, workflow.StatusFailed)
		pr.bus.Publish(event.NewCapabilityStatusEvent(subjectID, phase.Name, sub.Name, name, event.CapabilityFailed, string(outcome.Failure.Kind)))
		log.Warn("sub-task failed",
			"phase", phase.Name,
			"subtask", sub.Name,
			"kind", string(outcome.Failure.Kind),
			"failure", outcome.Failure.Message,
		)
	} else {
		board.Set(phase.Name, sub.Name, workflow.StatusCompleted)
		pr.bus.Publish(event.NewCapabilityStatusEvent(subjectID, phase.Name, sub.Name, name, event.CapabilityCompleted, ""))
		log.Debug("sub-task completed",
			"phase", phase.Name,
			"subtask", sub.Name,
			"duration", outcome.Duration,
		)
	}
	return result
}

// skipSubtask records a sub-task that never started because the phase
// window had already closed.
func (pr *phaseRunner) skipSubtask(subjectID string, phase blueprint.Phase, sub blueprint.Subtask, board *workflow.StatusBoard) workflow.SubtaskResult {
	failure := &capability.Failure{
		Kind:    capability.KindTimeout,
		Message: fmt.Sprintf("phase %s deadline expired before sub-task started", phase.Name),
	}
	board.Set(phase.Name, sub.Name, workflow.StatusFailed)
	pr.bus.Publish(event.NewCapabilityStatusEvent(subjectID, phase.Name, sub.Name, sub.CapabilityName(), event.CapabilityFailed, string(failure.Kind)))
	return workflow.SubtaskResult{
		Subtask:    sub.Name,
		Capability: sub.CapabilityName(),
		Failure:    failure,
	}
}

// clonePrior deep-copies a prior-outputs map so concurrent sub-tasks
// never share mutable payloads.
func clonePrior(prior map[string]map[string]capability.Payload) map[string]map[string]capability.Payload {
	out := make(map[string]map[string]capability.Payload, len(prior))
	for phase, payloads := range prior {
		cloned := make(map[string]capability.Payload, len(payloads))
		for subtask, payload := range payloads {
			cloned[subtask] = payload.Clone()
		}
		out[phase] = cloned
	}
	return out
}
