package blueprint

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/workflow"
)

// Version is the blueprint file format version this build understands.
const Version = "1"

// Policy controls how a phase reacts to sub-task failures.
type Policy string

const (
	// PolicyAllMustSucceed halts the run at the first failed sub-task in
	// the phase; the run is marked failed and later phases never start.
	PolicyAllMustSucceed Policy = "all_must_succeed"

	// PolicyBestEffort records sub-task failures and lets the run
	// continue to the next phase.
	PolicyBestEffort Policy = "best_effort"
)

// AllPolicies returns the known policies.
func AllPolicies() []Policy {
	return []Policy{PolicyAllMustSucceed, PolicyBestEffort}
}

// Valid reports whether the policy is a known value.
func (p Policy) Valid() bool {
	return p == PolicyAllMustSucceed || p == PolicyBestEffort
}

// Duration is a time.Duration that round-trips through YAML as a string
// like "90s" or "5m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Subtask declares one unit of work within a phase.
type Subtask struct {
	// Name identifies the sub-task within its phase and names the output
	// slot its payload merges into.
	Name string `yaml:"name"`

	// Capability is the registered capability to invoke. Defaults to
	// Name, so most sub-tasks only declare a name.
	Capability string `yaml:"capability,omitempty"`

	// Params are passed verbatim to the capability.
	Params map[string]any `yaml:"params,omitempty"`

	// Timeout overrides the phase timeout for this sub-task.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// CapabilityName returns the capability this sub-task invokes.
func (s Subtask) CapabilityName() string {
	if s.Capability != "" {
		return s.Capability
	}
	return s.Name
}

// Phase declares one pipeline phase: which stage it advances the subject
// to, how its sub-tasks run, and how failures are treated.
type Phase struct {
	// Name identifies the phase and keys its merged output in run state.
	Name string `yaml:"name"`

	// Stage is the lifecycle stage this phase belongs to. Defaults to
	// Name; phases must follow the pipeline stage order.
	Stage string `yaml:"stage,omitempty"`

	// Policy decides whether sub-task failures halt the run.
	Policy Policy `yaml:"policy"`

	// Sequential runs sub-tasks one after another in declaration order,
	// each seeing its predecessors' outputs. The default is concurrent
	// execution of independent sub-tasks.
	Sequential bool `yaml:"sequential,omitempty"`

	// Timeout bounds the whole phase. Zero falls back to the engine's
	// configured default.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Subtasks is the work the phase performs. At least one is required.
	Subtasks []Subtask `yaml:"subtasks"`
}

// StageName returns the stage this phase maps to.
func (p Phase) StageName() string {
	if p.Stage != "" {
		return p.Stage
	}
	return p.Name
}

// SubtaskNames returns the declared sub-task names in order.
func (p Phase) SubtaskNames() []string {
	names := make([]string, len(p.Subtasks))
	for i, s := range p.Subtasks {
		names[i] = s.Name
	}
	return names
}

// Blueprint is a complete phase graph driving a pipeline run.
type Blueprint struct {
	// Name identifies the blueprint in run state and logs.
	Name string `yaml:"name"`

	// Version is the file format version (currently "1").
	Version string `yaml:"version"`

	// Phases execute in declaration order.
	Phases []Phase `yaml:"phases"`
}

// Phase returns the named phase.
func (b *Blueprint) Phase(name string) (Phase, bool) {
	for _, p := range b.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// PhaseNames returns the declared phase names in order.
func (b *Blueprint) PhaseNames() []string {
	names := make([]string, len(b.Phases))
	for i, p := range b.Phases {
		names[i] = p.Name
	}
	return names
}

// Stages returns the lifecycle stages the blueprint walks through, in
// order. Only meaningful after Validate.
func (b *Blueprint) Stages() []workflow.Stage {
	stages := make([]workflow.Stage, len(b.Phases))
	for i, p := range b.Phases {
		stages[i] = workflow.Stage(p.StageName())
	}
	return stages
}

// CapabilityNames returns every capability the blueprint references,
// deduplicated, in first-appearance order. Engines check these against
// the registry before accepting the blueprint.
func (b *Blueprint) CapabilityNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, phase := range b.Phases {
		for _, sub := range phase.Subtasks {
			name := sub.CapabilityName()
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Validate checks the blueprint's structure. All findings are policy
// errors so that engine construction can reject bad blueprints before
// any run starts.
func (b *Blueprint) Validate() error {
	if b.Name == "" {
		return errors.NewPolicyError("blueprint name is required", errors.ErrBlueprintInvalid).
			WithField("name")
	}
	if b.Version != Version {
		return errors.NewPolicyError(
			fmt.Sprintf("unsupported blueprint version %q (supported: %s)", b.Version, Version),
			errors.ErrBlueprintInvalid,
		).WithBlueprint(b.Name).WithField("version")
	}
	if len(b.Phases) == 0 {
		return errors.NewPolicyError("blueprint declares no phases", errors.ErrBlueprintInvalid).
			WithBlueprint(b.Name).WithField("phases")
	}

	seenPhases := make(map[string]bool)
	prevIndex := -1

	for _, phase := range b.Phases {
		if phase.Name == "" {
			return errors.NewPolicyError("phase name is required", errors.ErrBlueprintInvalid).
				WithBlueprint(b.Name).WithField("name")
		}
		if seenPhases[phase.Name] {
			return errors.NewPolicyError("duplicate phase name", errors.ErrBlueprintInvalid).
				WithBlueprint(b.Name).WithPhase(phase.Name)
		}
		seenPhases[phase.Name] = true

		stage, err := workflow.ParseStage(phase.StageName())
		if err != nil {
			return errors.NewPolicyError(
				fmt.Sprintf("stage %q is not a pipeline stage", phase.StageName()),
				errors.ErrBlueprintInvalid,
			).WithBlueprint(b.Name).WithPhase(phase.Name).WithField("stage")
		}
		if stage.IsTerminal() {
			return errors.NewPolicyError("phases cannot target a terminal stage", errors.ErrBlueprintInvalid).
				WithBlueprint(b.Name).WithPhase(phase.Name).WithField("stage")
		}
		if stage.Index() <= prevIndex {
			return errors.NewPolicyError("phases must follow the pipeline stage order", errors.ErrBlueprintInvalid).
				WithBlueprint(b.Name).WithPhase(phase.Name).WithField("stage")
		}
		prevIndex = stage.Index()

		if !phase.Policy.Valid() {
			return errors.NewPolicyError(
				fmt.Sprintf("policy %q is not one of %v", phase.Policy, AllPolicies()),
				errors.ErrUnknownPolicy,
			).WithBlueprint(b.Name).WithPhase(phase.Name).WithField("policy")
		}
		if len(phase.Subtasks) == 0 {
			return errors.NewPolicyError("phase declares no sub-tasks", errors.ErrNoSubtasks).
				WithBlueprint(b.Name).WithPhase(phase.Name).WithField("subtasks")
		}
		if phase.Timeout < 0 {
			return errors.NewPolicyError("phase timeout cannot be negative", errors.ErrBlueprintInvalid).
				WithBlueprint(b.Name).WithPhase(phase.Name).WithField("timeout")
		}

		seenSubtasks := make(map[string]bool)
		for _, sub := range phase.Subtasks {
			if sub.Name == "" {
				return errors.NewPolicyError("sub-task name is required", errors.ErrBlueprintInvalid).
					WithBlueprint(b.Name).WithPhase(phase.Name).WithField("subtasks")
			}
			if seenSubtasks[sub.Name] {
				return errors.NewPolicyError(
					fmt.Sprintf("duplicate sub-task name %q", sub.Name),
					errors.ErrBlueprintInvalid,
				).WithBlueprint(b.Name).WithPhase(phase.Name).WithField("subtasks")
			}
			seenSubtasks[sub.Name] = true

			if sub.Timeout < 0 {
				return errors.NewPolicyError(
					fmt.Sprintf("sub-task %q timeout cannot be negative", sub.Name),
					errors.ErrBlueprintInvalid,
				).WithBlueprint(b.Name).WithPhase(phase.Name).WithField("timeout")
			}
		}
	}

	return nil
}
