package event

import "time"

// Event is implemented by every notification published on the Bus.
type Event interface {
	// EventType identifies the event as "category.action", for example
	// "run.started" or "capability.status_changed".
	EventType() string

	// Timestamp reports when the event was created.
	Timestamp() time.Time
}

// baseEvent carries the type tag and creation time shared by every
// concrete event. Embedding it satisfies the Event interface.
type baseEvent struct {
	kind string
	at   time.Time
}

func (e baseEvent) EventType() string    { return e.kind }
func (e baseEvent) Timestamp() time.Time { return e.at }

func newBaseEvent(kind string) baseEvent {
	return baseEvent{kind: kind, at: time.Now()}
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// Stage mirrors workflow.Stage for decoupling. Subscribers that only care
// about event payloads never need to import the workflow package.
type Stage string

const (
	StageInitialization Stage = "initialization"
	StageAnalysis       Stage = "analysis"
	StageTesting        Stage = "testing"
	StageQualityGates   Stage = "quality_gates"
	StageDeploymentPrep Stage = "deployment_prep"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

// RunStartedEvent is emitted when a pipeline run begins for a subject.
type RunStartedEvent struct {
	baseEvent
	SubjectID string // Subject the run operates on
	Blueprint string // Name of the blueprint driving the run
	Phases    int    // Number of phases the blueprint declares
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(subjectID, blueprint string, phases int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent("run.started"),
		SubjectID: subjectID,
		Blueprint: blueprint,
		Phases:    phases,
	}
}

// StageChangedEvent is emitted when a run advances to a new pipeline stage.
type StageChangedEvent struct {
	baseEvent
	SubjectID     string // Subject the run operates on
	PreviousStage Stage  // Previous stage (empty on the first transition)
	CurrentStage  Stage  // New current stage
}

// NewStageChangedEvent creates a StageChangedEvent.
func NewStageChangedEvent(subjectID string, previousStage, currentStage Stage) StageChangedEvent {
	return StageChangedEvent{
		baseEvent:     newBaseEvent("run.stage_changed"),
		SubjectID:     subjectID,
		PreviousStage: previousStage,
		CurrentStage:  currentStage,
	}
}

// RunCompletedEvent is emitted when a run reaches a terminal stage.
type RunCompletedEvent struct {
	baseEvent
	SubjectID  string        // Subject the run operated on
	Success    bool          // True if the run reached the completed stage
	FinalStage Stage         // Terminal stage (completed or failed)
	PhasesRun  int           // Number of phases that executed
	Failures   int           // Total sub-task failures recorded
	Duration   time.Duration // Total wall-clock duration of the run
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(subjectID string, success bool, finalStage Stage, phasesRun, failures int, duration time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent:  newBaseEvent("run.completed"),
		SubjectID:  subjectID,
		Success:    success,
		FinalStage: finalStage,
		PhasesRun:  phasesRun,
		Failures:   failures,
		Duration:   duration,
	}
}

// CheckpointSavedEvent is emitted after a phase artifact is persisted
// through the status sink's checkpoint hook.
type CheckpointSavedEvent struct {
	baseEvent
	SubjectID string // Subject the run operates on
	Phase     string // Phase whose artifact was persisted
}

// NewCheckpointSavedEvent creates a CheckpointSavedEvent.
func NewCheckpointSavedEvent(subjectID, phase string) CheckpointSavedEvent {
	return CheckpointSavedEvent{
		baseEvent: newBaseEvent("run.checkpoint"),
		SubjectID: subjectID,
		Phase:     phase,
	}
}

// -----------------------------------------------------------------------------
// Capability Events
// -----------------------------------------------------------------------------

// CapabilityStatus represents the observable status of a capability within
// a run. Mirrors workflow.CapabilityStatus for decoupling.
type CapabilityStatus string

const (
	CapabilityIdle      CapabilityStatus = "idle"
	CapabilityRunning   CapabilityStatus = "running"
	CapabilityCompleted CapabilityStatus = "completed"
	CapabilityFailed    CapabilityStatus = "failed"
)

// CapabilityStatusEvent is emitted when a capability's status changes
// during phase execution. This enables observers to poll progress
// mid-phase without touching run state.
type CapabilityStatusEvent struct {
	baseEvent
	SubjectID  string           // Subject the run operates on
	Phase      string           // Phase dispatching the sub-task
	Subtask    string           // Sub-task name within the phase
	Capability string           // Capability backing the sub-task
	Status     CapabilityStatus // New status
	Kind       string           // Failure kind when Status is failed, empty otherwise
}

// NewCapabilityStatusEvent creates a CapabilityStatusEvent.
func NewCapabilityStatusEvent(subjectID, phase, subtask, capability string, status CapabilityStatus, kind string) CapabilityStatusEvent {
	return CapabilityStatusEvent{
		baseEvent:  newBaseEvent("capability.status_changed"),
		SubjectID:  subjectID,
		Phase:      phase,
		Subtask:    subtask,
		Capability: capability,
		Status:     status,
		Kind:       kind,
	}
}

// -----------------------------------------------------------------------------
// Trigger Events
// -----------------------------------------------------------------------------

// TriggerAcceptedEvent is emitted when the trigger layer admits a run
// request for execution.
type TriggerAcceptedEvent struct {
	baseEvent
	SubjectID string // Subject the request names
	Source    string // Where the request came from (e.g., "cli", "spool")
}

// NewTriggerAcceptedEvent creates a TriggerAcceptedEvent.
func NewTriggerAcceptedEvent(subjectID, source string) TriggerAcceptedEvent {
	return TriggerAcceptedEvent{
		baseEvent: newBaseEvent("trigger.accepted"),
		SubjectID: subjectID,
		Source:    source,
	}
}

// TriggerRejectedEvent is emitted when a run request is refused, most
// commonly because a run is already active for the subject.
type TriggerRejectedEvent struct {
	baseEvent
	SubjectID string // Subject the request names
	Reason    string // Human-readable rejection reason
}

// NewTriggerRejectedEvent creates a TriggerRejectedEvent.
func NewTriggerRejectedEvent(subjectID, reason string) TriggerRejectedEvent {
	return TriggerRejectedEvent{
		baseEvent: newBaseEvent("trigger.rejected"),
		SubjectID: subjectID,
		Reason:    reason,
	}
}

// TriggerQueuedEvent is emitted when a run request is parked behind an
// active run under the queueing admission policy.
type TriggerQueuedEvent struct {
	baseEvent
	SubjectID string // Subject the request names
	Position  int    // Position in the subject's queue, 1-based
}

// NewTriggerQueuedEvent creates a TriggerQueuedEvent.
func NewTriggerQueuedEvent(subjectID string, position int) TriggerQueuedEvent {
	return TriggerQueuedEvent{
		baseEvent: newBaseEvent("trigger.queued"),
		SubjectID: subjectID,
		Position:  position,
	}
}
