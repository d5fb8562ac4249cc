package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
)

func successResult(subtask string, payload capability.Payload, d time.Duration) SubtaskResult {
	return SubtaskResult{Subtask: subtask, Capability: subtask, Payload: payload, Duration: d, Attempts: 1}
}

func failureResult(subtask string, kind capability.FailureKind, msg string, d time.Duration) SubtaskResult {
	return SubtaskResult{
		Subtask:    subtask,
		Capability: subtask,
		Failure:    &capability.Failure{Kind: kind, Message: msg},
		Duration:   d,
		Attempts:   1,
	}
}

func TestNewState(t *testing.T) {
	s := NewState("svc-api", "default")

	if s.SubjectID != "svc-api" {
		t.Errorf("SubjectID = %q, want svc-api", s.SubjectID)
	}
	if s.Blueprint != "default" {
		t.Errorf("Blueprint = %q, want default", s.Blueprint)
	}
	if s.Stage != "" {
		t.Errorf("Stage = %q, want unset", s.Stage)
	}
	if s.Results == nil || s.Status == nil {
		t.Error("Results map and Status board must be initialized")
	}
	if s.StartedAt.IsZero() {
		t.Error("StartedAt not stamped")
	}
}

func TestState_AdvanceTo(t *testing.T) {
	s := NewState("svc-api", "default")

	if err := s.AdvanceTo(StageInitialization, "run started"); err != nil {
		t.Fatalf("initial AdvanceTo() error = %v", err)
	}
	if err := s.AdvanceTo(StageAnalysis, "phase complete"); err != nil {
		t.Fatalf("forward AdvanceTo() error = %v", err)
	}
	if err := s.AdvanceTo(StageDeploymentPrep, "skipping undeclared stages"); err != nil {
		t.Fatalf("skip AdvanceTo() error = %v", err)
	}

	if s.Stage != StageDeploymentPrep {
		t.Errorf("Stage = %q, want deployment_prep", s.Stage)
	}
	if len(s.History) != 3 {
		t.Fatalf("History has %d entries, want 3", len(s.History))
	}
	if s.History[0].From != "" || s.History[0].To != StageInitialization {
		t.Errorf("History[0] = %v, want initial entry into initialization", s.History[0])
	}
	if s.History[2].Reason != "skipping undeclared stages" {
		t.Errorf("History[2].Reason = %q", s.History[2].Reason)
	}
}

func TestState_AdvanceTo_InvalidTransition(t *testing.T) {
	s := NewState("svc-api", "default")
	if err := s.AdvanceTo(StageTesting, ""); err != nil {
		t.Fatalf("setup AdvanceTo() error = %v", err)
	}

	err := s.AdvanceTo(StageAnalysis, "")
	if err == nil {
		t.Fatal("backward AdvanceTo() expected error, got nil")
	}
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
	if s.Stage != StageTesting {
		t.Errorf("Stage changed to %q on rejected transition", s.Stage)
	}
	if len(s.History) != 1 {
		t.Errorf("History grew to %d entries on rejected transition", len(s.History))
	}
}

func TestState_AdvanceTo_TerminalStage(t *testing.T) {
	s := NewState("svc-api", "default")
	if err := s.AdvanceTo(StageInitialization, ""); err != nil {
		t.Fatalf("setup AdvanceTo() error = %v", err)
	}
	if err := s.Fail("halted"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	err := s.AdvanceTo(StageAnalysis, "")
	if err == nil {
		t.Fatal("AdvanceTo() from terminal stage expected error, got nil")
	}
	if !errors.Is(err, errors.ErrTerminalStage) {
		t.Errorf("error = %v, want ErrTerminalStage", err)
	}
}

func TestState_CompleteAndFail(t *testing.T) {
	s := NewState("svc-api", "default")
	if err := s.AdvanceTo(StageDeploymentPrep, ""); err != nil {
		t.Fatalf("setup AdvanceTo() error = %v", err)
	}

	if err := s.Complete("all phases done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !s.Succeeded() {
		t.Error("Succeeded() = false after Complete()")
	}
	if s.FinishedAt.IsZero() {
		t.Error("FinishedAt not stamped by Complete()")
	}

	if err := s.Complete("again"); err == nil {
		t.Error("second Complete() expected error, got nil")
	}
}

func TestState_ApplyPhase(t *testing.T) {
	s := NewState("svc-api", "default")

	result := PhaseResult{
		Phase: "analysis",
		Stage: StageAnalysis,
		Results: []SubtaskResult{
			successResult("complexity_profile", capability.Payload{"hotspots": 3}, 40*time.Millisecond),
			failureResult("security_scan", capability.KindTransient, "registry unreachable", 25*time.Millisecond),
		},
		Duration: 50 * time.Millisecond,
		Retries:  2,
	}

	if err := s.ApplyPhase(result); err != nil {
		t.Fatalf("ApplyPhase() error = %v", err)
	}

	output, ok := s.Results["analysis"]
	if !ok {
		t.Fatal("phase output missing from Results")
	}
	if len(output) != 1 {
		t.Fatalf("output has %d slots, want 1 (failures are excluded)", len(output))
	}
	if output["complexity_profile"]["hotspots"] != 3 {
		t.Errorf("merged payload = %v", output["complexity_profile"])
	}

	if len(s.Errors) != 1 {
		t.Fatalf("Errors has %d records, want 1", len(s.Errors))
	}
	rec := s.Errors[0]
	if rec.Phase != "analysis" || rec.Subtask != "security_scan" || rec.Kind != "transient" {
		t.Errorf("error record = %+v", rec)
	}
	if rec.At.IsZero() {
		t.Error("error record not stamped")
	}

	if s.Metrics.SubtasksRun != 2 || s.Metrics.SubtasksFailed != 1 || s.Metrics.Retries != 2 {
		t.Errorf("metrics = %+v", s.Metrics)
	}
	if s.Metrics.TotalDuration != 50*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 50ms", s.Metrics.TotalDuration)
	}
}

func TestState_ApplyPhase_DuplicatePhase(t *testing.T) {
	s := NewState("svc-api", "default")
	result := PhaseResult{Phase: "testing", Stage: StageTesting}

	if err := s.ApplyPhase(result); err != nil {
		t.Fatalf("first ApplyPhase() error = %v", err)
	}
	if err := s.ApplyPhase(result); err == nil {
		t.Error("second ApplyPhase() of same phase expected error, got nil")
	}
}

func TestState_ApplyPhase_DuplicateSlot(t *testing.T) {
	s := NewState("svc-api", "default")
	result := PhaseResult{
		Phase: "testing",
		Stage: StageTesting,
		Results: []SubtaskResult{
			successResult("test_generation", capability.Payload{"generated": 10}, time.Millisecond),
			successResult("test_generation", capability.Payload{"generated": 11}, time.Millisecond),
		},
	}

	if err := s.ApplyPhase(result); err == nil {
		t.Error("ApplyPhase() with duplicate slot expected error, got nil")
	}
}

func TestState_MetricsInvariant(t *testing.T) {
	s := NewState("svc-api", "default")

	for i, phase := range []string{"initialization", "analysis", "testing"} {
		result := PhaseResult{
			Phase: phase,
			Results: []SubtaskResult{
				successResult("sub", capability.Payload{}, time.Duration(i)*time.Millisecond),
			},
			Duration: time.Duration(10*(i+1)) * time.Millisecond,
		}
		if err := s.ApplyPhase(result); err != nil {
			t.Fatalf("ApplyPhase(%s) error = %v", phase, err)
		}
	}

	if got, want := s.Metrics.TotalDuration, s.Metrics.DurationSum(); got != want {
		t.Errorf("TotalDuration = %v, sum of phase durations = %v", got, want)
	}
	if s.Metrics.TotalDuration != 60*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 60ms", s.Metrics.TotalDuration)
	}
}

func TestState_MergeOrderIndependence(t *testing.T) {
	makeResults := func() []PhaseResult {
		return []PhaseResult{
			{
				Phase: "initialization",
				Stage: StageInitialization,
				Results: []SubtaskResult{
					successResult("source_inventory", capability.Payload{"files": 10}, 5*time.Millisecond),
					failureResult("dependency_audit", capability.KindPermanent, "lockfile missing", 3*time.Millisecond),
				},
				Duration: 8 * time.Millisecond,
			},
			{
				Phase: "analysis",
				Stage: StageAnalysis,
				Results: []SubtaskResult{
					successResult("security_scan", capability.Payload{"findings": 0}, 7*time.Millisecond),
				},
				Duration: 7 * time.Millisecond,
			},
		}
	}

	forward := NewState("svc-api", "default")
	for _, r := range makeResults() {
		if err := forward.ApplyPhase(r); err != nil {
			t.Fatalf("forward ApplyPhase() error = %v", err)
		}
	}

	reversed := NewState("svc-api", "default")
	results := makeResults()
	for i := len(results) - 1; i >= 0; i-- {
		if err := reversed.ApplyPhase(results[i]); err != nil {
			t.Fatalf("reversed ApplyPhase() error = %v", err)
		}
	}

	if !reflect.DeepEqual(forward.Results, reversed.Results) {
		t.Errorf("Results differ by merge order:\nforward:  %v\nreversed: %v", forward.Results, reversed.Results)
	}
	if !reflect.DeepEqual(forward.Metrics, reversed.Metrics) {
		t.Errorf("Metrics differ by merge order:\nforward:  %+v\nreversed: %+v", forward.Metrics, reversed.Metrics)
	}
}

func TestState_PriorOutputs(t *testing.T) {
	s := NewState("svc-api", "default")
	if err := s.ApplyPhase(PhaseResult{
		Phase: "initialization",
		Results: []SubtaskResult{
			successResult("source_inventory", capability.Payload{"files": 10}, time.Millisecond),
		},
	}); err != nil {
		t.Fatalf("ApplyPhase() error = %v", err)
	}

	prior := s.PriorOutputs()
	prior["initialization"]["source_inventory"]["files"] = 999

	if got := s.Results["initialization"]["source_inventory"]["files"]; got != 10 {
		t.Errorf("state mutated through PriorOutputs copy: files = %v", got)
	}
}

func TestState_Clone(t *testing.T) {
	s := NewState("svc-api", "default")
	if err := s.AdvanceTo(StageInitialization, "start"); err != nil {
		t.Fatalf("AdvanceTo() error = %v", err)
	}
	if err := s.ApplyPhase(PhaseResult{
		Phase: "initialization",
		Results: []SubtaskResult{
			successResult("source_inventory", capability.Payload{"files": 10}, time.Millisecond),
		},
		Duration: time.Millisecond,
	}); err != nil {
		t.Fatalf("ApplyPhase() error = %v", err)
	}
	s.Status.Set("initialization", "source_inventory", StatusCompleted)

	clone := s.Clone()

	clone.Results["initialization"]["source_inventory"]["files"] = 999
	clone.History[0].Reason = "mutated"
	clone.Metrics.PhaseDurations["initialization"] = time.Hour
	clone.Status.Set("initialization", "source_inventory", StatusFailed)

	if got := s.Results["initialization"]["source_inventory"]["files"]; got != 10 {
		t.Errorf("payload mutated through clone: files = %v", got)
	}
	if s.History[0].Reason != "start" {
		t.Errorf("history mutated through clone: %q", s.History[0].Reason)
	}
	if s.Metrics.PhaseDurations["initialization"] != time.Millisecond {
		t.Errorf("metrics mutated through clone: %v", s.Metrics.PhaseDurations["initialization"])
	}
	if status, _ := s.Status.Get("initialization", "source_inventory"); status != StatusCompleted {
		t.Errorf("status board mutated through clone: %q", status)
	}
}

func TestStatusBoard(t *testing.T) {
	board := NewStatusBoard()
	board.Seed("analysis", []string{"complexity_profile", "security_scan"})

	if status, ok := board.Get("analysis", "security_scan"); !ok || status != StatusIdle {
		t.Errorf("seeded status = %q, %v, want idle, true", status, ok)
	}

	board.Set("analysis", "security_scan", StatusRunning)
	snap := board.Snapshot()
	if snap["analysis/security_scan"] != StatusRunning {
		t.Errorf("snapshot status = %q, want running", snap["analysis/security_scan"])
	}

	// Snapshots are copies.
	snap["analysis/security_scan"] = StatusFailed
	if status, _ := board.Get("analysis", "security_scan"); status != StatusRunning {
		t.Errorf("board mutated through snapshot: %q", status)
	}

	if _, ok := board.Get("testing", "coverage_report"); ok {
		t.Error("Get() of unseeded sub-task reported ok")
	}
}

func TestStatusBoard_Concurrent(t *testing.T) {
	board := NewStatusBoard()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			subtask := fmt.Sprintf("sub-%d", i)
			board.Set("analysis", subtask, StatusRunning)
			board.Set("analysis", subtask, StatusCompleted)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			board.Snapshot()
		}()
	}
	wg.Wait()

	snap := board.Snapshot()
	if len(snap) != 10 {
		t.Fatalf("snapshot has %d entries, want 10", len(snap))
	}
	for key, status := range snap {
		if status != StatusCompleted {
			t.Errorf("%s = %q, want completed", key, status)
		}
	}
}

func TestStatusBoard_JSONRoundTrip(t *testing.T) {
	board := NewStatusBoard()
	board.Set("testing", "coverage_report", StatusFailed)

	data, err := json.Marshal(board)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	restored := NewStatusBoard()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if status, ok := restored.Get("testing", "coverage_report"); !ok || status != StatusFailed {
		t.Errorf("restored status = %q, %v, want failed, true", status, ok)
	}
}
