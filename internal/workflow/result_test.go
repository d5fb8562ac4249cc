package workflow

import (
	"testing"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
)

func TestSubtaskResult_Failed(t *testing.T) {
	ok := successResult("lint_gate", capability.Payload{"passed": true}, time.Millisecond)
	if ok.Failed() {
		t.Error("successful result reported Failed()")
	}

	bad := failureResult("lint_gate", capability.KindPermanent, "threshold exceeded", time.Millisecond)
	if !bad.Failed() {
		t.Error("failed result did not report Failed()")
	}
}

func TestPhaseResult_FailureCount(t *testing.T) {
	result := PhaseResult{
		Phase: "quality_gates",
		Stage: StageQualityGates,
		Results: []SubtaskResult{
			successResult("lint_gate", capability.Payload{}, time.Millisecond),
			failureResult("vulnerability_gate", capability.KindPermanent, "critical findings", time.Millisecond),
			failureResult("extra_gate", capability.KindTimeout, "no response", time.Millisecond),
		},
	}

	if got := result.FailureCount(); got != 2 {
		t.Errorf("FailureCount() = %d, want 2", got)
	}
	if result.Succeeded() {
		t.Error("Succeeded() = true with failures present")
	}

	failed := result.FailedSubtasks()
	if len(failed) != 2 {
		t.Fatalf("FailedSubtasks() returned %d, want 2", len(failed))
	}
	if failed[0].Subtask != "vulnerability_gate" || failed[1].Subtask != "extra_gate" {
		t.Errorf("FailedSubtasks() order = [%s %s], want completion order", failed[0].Subtask, failed[1].Subtask)
	}
}

func TestPhaseResult_Succeeded(t *testing.T) {
	result := PhaseResult{
		Phase: "testing",
		Results: []SubtaskResult{
			successResult("test_generation", capability.Payload{}, time.Millisecond),
		},
	}
	if !result.Succeeded() {
		t.Error("Succeeded() = false with no failures")
	}

	empty := PhaseResult{Phase: "testing"}
	if !empty.Succeeded() {
		t.Error("Succeeded() = false for empty result set")
	}
}
