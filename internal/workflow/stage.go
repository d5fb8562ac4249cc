package workflow

import (
	"fmt"
	"slices"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
)

// Stage represents a subject's position in the pipeline lifecycle.
type Stage string

const (
	// StageInitialization is the first working stage, where the subject's
	// sources and dependencies are inventoried.
	StageInitialization Stage = "initialization"

	// StageAnalysis covers structural and security analysis of the
	// subject.
	StageAnalysis Stage = "analysis"

	// StageTesting covers test generation and coverage measurement.
	StageTesting Stage = "testing"

	// StageQualityGates enforces lint and vulnerability thresholds.
	StageQualityGates Stage = "quality_gates"

	// StageDeploymentPrep assembles artifacts and the readiness report.
	StageDeploymentPrep Stage = "deployment_prep"

	// StageCompleted is the terminal success stage.
	StageCompleted Stage = "completed"

	// StageFailed is the terminal failure stage. Any working stage can
	// fail into it.
	StageFailed Stage = "failed"
)

// PipelineOrder returns the working stages in their canonical run order.
func PipelineOrder() []Stage {
	return []Stage{
		StageInitialization,
		StageAnalysis,
		StageTesting,
		StageQualityGates,
		StageDeploymentPrep,
	}
}

// AllStages returns every stage including the terminal ones.
func AllStages() []Stage {
	return append(PipelineOrder(), StageCompleted, StageFailed)
}

// IsTerminal returns true if the stage is a final stage.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Index returns the stage's position in the pipeline order, or -1 for
// terminal stages.
func (s Stage) Index() int {
	return slices.Index(PipelineOrder(), s)
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// ParseStage converts a string into a known Stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !slices.Contains(AllStages(), s) {
		return "", errors.NewValidationError("unknown stage").WithField("stage").WithValue(raw)
	}
	return s, nil
}

// ValidTransitions defines the allowed stage transitions. The pipeline
// only moves forward; later working stages may be skipped when a
// blueprint declares a subset of stages, so each working stage may jump
// to any later one. Terminal stages allow no further transitions.
var ValidTransitions = map[Stage][]Stage{
	// From initialization, any later stage or a terminal stage.
	StageInitialization: {StageAnalysis, StageTesting, StageQualityGates, StageDeploymentPrep, StageCompleted, StageFailed},

	// From analysis onward the reachable set shrinks.
	StageAnalysis:     {StageTesting, StageQualityGates, StageDeploymentPrep, StageCompleted, StageFailed},
	StageTesting:      {StageQualityGates, StageDeploymentPrep, StageCompleted, StageFailed},
	StageQualityGates: {StageDeploymentPrep, StageCompleted, StageFailed},

	// The last working stage can only finish.
	StageDeploymentPrep: {StageCompleted, StageFailed},

	// Terminal stages.
	StageCompleted: {},
	StageFailed:    {},
}

// CanTransition checks whether moving from one stage to another is
// allowed.
func CanTransition(from, to Stage) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Transition records a single stage change for the run's audit trail.
type Transition struct {
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// String renders the transition for logs.
func (t Transition) String() string {
	if t.From == "" {
		return fmt.Sprintf("-> %s", t.To)
	}
	return fmt.Sprintf("%s -> %s", t.From, t.To)
}
