package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

const (
	subjectsFileName = "subjects.json"
	runsDirName      = "runs"
	artifactsDirName = "artifacts"
)

// subjectIDPattern restricts IDs to filename-safe characters.
var subjectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var (
	_ Sink         = (*FileStore)(nil)
	_ Checkpointer = (*FileStore)(nil)
)

// persistedSubjects is the serializable subject registry.
type persistedSubjects struct {
	Subjects map[string]Subject `json:"subjects"`
}

// FileStore is a sink backed by JSON files in a state directory:
//
//	subjects.json            subject registry
//	runs/<subject>.json      final state of the latest run
//	artifacts/<subject>/     per-phase checkpoint artifacts
//
// Writes are atomic (temp file plus rename) and guarded by a flock(2)
// lock so that concurrent gauntlet processes sharing the directory do
// not tear each other's state.
type FileStore struct {
	dir string
}

// NewFileStore opens or creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.NewValidationError("state directory is required").WithField("dir")
	}
	for _, sub := range []string{"", runsDirName, artifactsDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Add registers a subject.
func (f *FileStore) Add(subject Subject) error {
	if subject.ID == "" {
		return errors.NewValidationError("subject ID is required").WithField("id")
	}
	if !subjectIDPattern.MatchString(subject.ID) {
		return errors.NewValidationError("subject ID must contain only letters, digits, dots, dashes and underscores").
			WithField("id").WithValue(subject.ID)
	}

	fl := NewFileLock(f.dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	subjects, err := f.readSubjects()
	if err != nil {
		return err
	}
	if _, exists := subjects[subject.ID]; exists {
		return errors.NewAlreadyExistsError("subject", subject.ID)
	}

	if subject.Status == "" {
		subject.Status = RunStatusRegistered
	}
	if subject.RegisteredAt.IsZero() {
		subject.RegisteredAt = time.Now()
	}
	subjects[subject.ID] = subject
	return f.writeSubjects(subjects)
}

// Remove deletes a subject along with its run state and artifacts.
func (f *FileStore) Remove(subjectID string) error {
	fl := NewFileLock(f.dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	subjects, err := f.readSubjects()
	if err != nil {
		return err
	}
	if _, exists := subjects[subjectID]; !exists {
		return errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}
	delete(subjects, subjectID)
	if err := f.writeSubjects(subjects); err != nil {
		return err
	}

	_ = os.Remove(f.runStatePath(subjectID))
	_ = os.RemoveAll(filepath.Join(f.dir, artifactsDirName, subjectID))
	return nil
}

// List returns all subjects sorted by ID.
func (f *FileStore) List() ([]Subject, error) {
	fl := NewFileLock(f.dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	subjects, err := f.readSubjects()
	if err != nil {
		return nil, err
	}

	out := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Resolve returns the registered subject.
func (f *FileStore) Resolve(subjectID string) (Subject, error) {
	fl := NewFileLock(f.dir)
	if err := fl.Lock(); err != nil {
		return Subject{}, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	subjects, err := f.readSubjects()
	if err != nil {
		return Subject{}, err
	}
	subject, exists := subjects[subjectID]
	if !exists {
		return Subject{}, errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}
	return subject, nil
}

// MarkInProgress records that a run has started.
func (f *FileStore) MarkInProgress(subjectID string) error {
	return f.setStatus(subjectID, RunStatusInProgress, "", nil)
}

// MarkCompleted records a successful run and persists its final state.
func (f *FileStore) MarkCompleted(subjectID string, state *workflow.State) error {
	return f.setStatus(subjectID, RunStatusCompleted, "", state)
}

// MarkFailed records a failed run and persists its final state.
func (f *FileStore) MarkFailed(subjectID string, state *workflow.State, reason string) error {
	return f.setStatus(subjectID, RunStatusFailed, reason, state)
}

func (f *FileStore) setStatus(subjectID string, status RunStatus, reason string, state *workflow.State) error {
	fl := NewFileLock(f.dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	subjects, err := f.readSubjects()
	if err != nil {
		return err
	}
	subject, exists := subjects[subjectID]
	if !exists {
		return errors.NewNotFoundError("subject", subjectID).WithCause(errors.ErrUnknownSubject)
	}

	if subject.Status != status || subject.Reason != reason {
		subject.Status = status
		subject.Reason = reason
		subject.UpdatedAt = time.Now()
		subjects[subjectID] = subject
		if err := f.writeSubjects(subjects); err != nil {
			return err
		}
	}

	if state != nil {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal run state: %w", err)
		}
		if err := atomicWrite(f.runStatePath(subjectID), data); err != nil {
			return err
		}
	}
	return nil
}

// LoadState reads the persisted final state of a subject's latest run.
func (f *FileStore) LoadState(subjectID string) (*workflow.State, error) {
	fl := NewFileLock(f.dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(f.runStatePath(subjectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("run state", subjectID)
		}
		return nil, fmt.Errorf("read run state: %w", err)
	}

	state := &workflow.State{Status: workflow.NewStatusBoard()}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return state, nil
}

// PersistPhaseArtifact writes a phase result under the subject's
// artifact directory as it completes, so crashed runs leave evidence.
func (f *FileStore) PersistPhaseArtifact(subjectID, phase string, result workflow.PhaseResult) error {
	dir := filepath.Join(f.dir, artifactsDirName, subjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal phase artifact: %w", err)
	}
	return atomicWrite(filepath.Join(dir, phase+".json"), data)
}

// ListArtifacts returns the phases with persisted artifacts for a
// subject, sorted by name.
func (f *FileStore) ListArtifacts(subjectID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, artifactsDirName, subjectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact directory: %w", err)
	}

	var phases []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		phases = append(phases, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(phases)
	return phases, nil
}

func (f *FileStore) runStatePath(subjectID string) string {
	return filepath.Join(f.dir, runsDirName, subjectID+".json")
}

func (f *FileStore) readSubjects() (map[string]Subject, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, subjectsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Subject), nil
		}
		return nil, fmt.Errorf("read subjects file: %w", err)
	}

	var persisted persistedSubjects
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("unmarshal subjects file: %w", err)
	}
	if persisted.Subjects == nil {
		persisted.Subjects = make(map[string]Subject)
	}
	return persisted.Subjects, nil
}

func (f *FileStore) writeSubjects(subjects map[string]Subject) error {
	data, err := json.MarshalIndent(persistedSubjects{Subjects: subjects}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subjects file: %w", err)
	}
	return atomicWrite(filepath.Join(f.dir, subjectsFileName), data)
}

// atomicWrite writes data to a temporary file and renames it into
// place.
func atomicWrite(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
