package sink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/capability"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func TestNewFileStore(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileStore(dir); err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	for _, sub := range []string{runsDirName, artifactsDirName} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected %s directory: %v", sub, err)
		}
	}

	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") expected error, got nil")
	}
}

func TestFileStore_SubjectsPersistAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := store.Add(Subject{ID: "svc-api", Repo: "/srv/repos/svc-api"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	subject, err := reopened.Resolve("svc-api")
	if err != nil {
		t.Fatalf("Resolve() after reopen error = %v", err)
	}
	if subject.Repo != "/srv/repos/svc-api" {
		t.Errorf("Repo = %q, want /srv/repos/svc-api", subject.Repo)
	}
}

func TestFileStore_AddRejectsUnsafeIDs(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"../escape", "a/b", "", ".hidden"} {
		if err := store.Add(Subject{ID: id}); err == nil {
			t.Errorf("Add(%q) expected error, got nil", id)
		}
	}
}

func TestFileStore_ResolveUnknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Resolve("ghost")
	if err == nil {
		t.Fatal("Resolve() of unknown subject expected error, got nil")
	}
	if !errors.Is(err, errors.ErrUnknownSubject) {
		t.Errorf("error = %v, want match for ErrUnknownSubject", err)
	}
}

func TestFileStore_MarkLifecycleAndLoadState(t *testing.T) {
	store := newTestStore(t)
	if err := store.Add(Subject{ID: "svc-api"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := store.MarkInProgress("svc-api"); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}

	state := workflow.NewState("svc-api", "default")
	if err := state.AdvanceTo(workflow.StageInitialization, "run started"); err != nil {
		t.Fatalf("AdvanceTo() error = %v", err)
	}
	if err := state.ApplyPhase(workflow.PhaseResult{
		Phase: "initialization",
		Stage: workflow.StageInitialization,
		Results: []workflow.SubtaskResult{
			{Subtask: "source_inventory", Capability: "source_inventory", Payload: capability.Payload{"files": float64(12)}, Duration: time.Millisecond, Attempts: 1},
		},
		Duration: time.Millisecond,
	}); err != nil {
		t.Fatalf("ApplyPhase() error = %v", err)
	}
	if err := state.Complete("all phases done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := store.MarkCompleted("svc-api", state); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	subject, _ := store.Resolve("svc-api")
	if subject.Status != RunStatusCompleted {
		t.Errorf("Status = %q, want completed", subject.Status)
	}

	loaded, err := store.LoadState("svc-api")
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if loaded.Stage != workflow.StageCompleted {
		t.Errorf("loaded Stage = %q, want completed", loaded.Stage)
	}
	if got := loaded.Results["initialization"]["source_inventory"]["files"]; got != float64(12) {
		t.Errorf("loaded payload files = %v (%T), want 12", got, got)
	}
	if loaded.Metrics.TotalDuration != time.Millisecond {
		t.Errorf("loaded TotalDuration = %v, want 1ms", loaded.Metrics.TotalDuration)
	}
}

func TestFileStore_MarksAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Add(Subject{ID: "svc-api"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	state := workflow.NewState("svc-api", "default")
	for i := 0; i < 3; i++ {
		if err := store.MarkFailed("svc-api", state, "gate failed"); err != nil {
			t.Fatalf("repeated MarkFailed() error = %v", err)
		}
	}

	subject, _ := store.Resolve("svc-api")
	if subject.Status != RunStatusFailed || subject.Reason != "gate failed" {
		t.Errorf("subject = %+v, want failed with reason", subject)
	}
}

func TestFileStore_LoadStateMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadState("svc-api")
	if err == nil {
		t.Fatal("LoadState() with no persisted run expected error, got nil")
	}
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("error type = %T, want *NotFoundError", err)
	}
}

func TestFileStore_PersistPhaseArtifact(t *testing.T) {
	store := newTestStore(t)
	if err := store.Add(Subject{ID: "svc-api"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	result := workflow.PhaseResult{
		Phase: "analysis",
		Stage: workflow.StageAnalysis,
		Results: []workflow.SubtaskResult{
			{Subtask: "security_scan", Capability: "security_scan", Payload: capability.Payload{"findings": float64(0)}, Attempts: 1},
		},
	}
	if err := store.PersistPhaseArtifact("svc-api", "analysis", result); err != nil {
		t.Fatalf("PersistPhaseArtifact() error = %v", err)
	}
	if err := store.PersistPhaseArtifact("svc-api", "testing", workflow.PhaseResult{Phase: "testing"}); err != nil {
		t.Fatalf("PersistPhaseArtifact() error = %v", err)
	}

	phases, err := store.ListArtifacts("svc-api")
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}
	if len(phases) != 2 || phases[0] != "analysis" || phases[1] != "testing" {
		t.Errorf("ListArtifacts() = %v, want [analysis testing]", phases)
	}

	if phases, err := store.ListArtifacts("ghost"); err != nil || phases != nil {
		t.Errorf("ListArtifacts(ghost) = %v, %v, want nil, nil", phases, err)
	}
}

func TestFileStore_RemoveCleansUp(t *testing.T) {
	store := newTestStore(t)
	if err := store.Add(Subject{ID: "svc-api"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	state := workflow.NewState("svc-api", "default")
	if err := store.MarkCompleted("svc-api", state); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.PersistPhaseArtifact("svc-api", "analysis", workflow.PhaseResult{Phase: "analysis"}); err != nil {
		t.Fatalf("PersistPhaseArtifact() error = %v", err)
	}

	if err := store.Remove("svc-api"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := store.LoadState("svc-api"); err == nil {
		t.Error("run state survived Remove()")
	}
	if phases, _ := store.ListArtifacts("svc-api"); phases != nil {
		t.Errorf("artifacts survived Remove(): %v", phases)
	}
}

func TestFileLock_TryLock(t *testing.T) {
	dir := t.TempDir()

	first := NewFileLock(dir)
	if err := first.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	second := NewFileLock(dir)
	acquired, err := second.TryLock()
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if acquired {
		t.Error("TryLock() acquired a held lock")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	acquired, err = second.TryLock()
	if err != nil {
		t.Fatalf("TryLock() after release error = %v", err)
	}
	if !acquired {
		t.Error("TryLock() failed to acquire a released lock")
	}
	if err := second.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	// Unlock without a held lock is a no-op.
	if err := second.Unlock(); err != nil {
		t.Errorf("idle Unlock() error = %v", err)
	}
}
