// Package errors defines the error vocabulary shared across the
// gauntlet codebase: sentinels for well-known conditions, structured
// error types that carry run context, and helpers that classify
// failures for retry and display decisions.
//
// Structured errors come in two layers. The pipeline types RunError,
// CapabilityError, DefectError, and PolicyError name the subsystem
// that failed and pick up context through chained builders:
//
//	err := errors.NewRunError("run rejected", errors.ErrRunActive).WithSubject("svc-api")
//
// The semantic types NotFoundError, AlreadyExistsError,
// ValidationError, and TimeoutError express conditions every subsystem
// hits.
//
// Callers branch on errors the standard way, through the re-exported
// Is and As:
//
//	if errors.Is(err, errors.ErrRunActive) { ... }
//
//	var runErr *errors.RunError
//	if errors.As(err, &runErr) { ... }
//
// On top of that, IsTransient separates failures worth retrying from
// permanent ones, IsUserFacing separates printable messages from
// internal detail, and GetSeverity grades each error from
// SeverityDebug up to SeverityCritical.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-exports of the standard library helpers, so callers need only one
// errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity grades how bad an error is, from debugging noise up to
// conditions that should stop the world.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{"debug", "info", "warning", "error", "critical"}

func (s Severity) String() string {
	if s < SeverityDebug || s > SeverityCritical {
		return "unknown"
	}
	return severityNames[s]
}

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

// Run-related sentinel errors
var (
	// ErrRunActive indicates a run is already in flight for the subject.
	ErrRunActive = New("run already active for subject")
	// ErrRunFailed indicates that a pipeline run finished in the failed stage.
	ErrRunFailed = New("run failed")
	// ErrRunCanceled indicates that a pipeline run was canceled mid-flight.
	ErrRunCanceled = New("run canceled")
	// ErrUnknownSubject indicates the subject is not registered with the sink.
	ErrUnknownSubject = New("unknown subject")
)

// Stage-related sentinel errors
var (
	// ErrInvalidTransition indicates a stage transition outside the canonical order.
	ErrInvalidTransition = New("invalid stage transition")
	// ErrTerminalStage indicates an attempt to advance past a terminal stage.
	ErrTerminalStage = New("stage is terminal")
	// ErrPhaseTimeout indicates a phase exceeded its execution window.
	ErrPhaseTimeout = New("phase timed out")
)

// Capability-related sentinel errors
var (
	// ErrUnknownCapability indicates a capability name with no registration.
	ErrUnknownCapability = New("capability not registered")
	// ErrCapabilityExists indicates a duplicate capability registration.
	ErrCapabilityExists = New("capability already registered")
)

// Blueprint-related sentinel errors
var (
	// ErrBlueprintInvalid indicates that a blueprint failed validation.
	ErrBlueprintInvalid = New("blueprint is invalid")
	// ErrUnknownPolicy indicates a phase policy outside the supported set.
	ErrUnknownPolicy = New("unknown phase policy")
	// ErrNoSubtasks indicates a phase declared without sub-tasks.
	ErrNoSubtasks = New("phase has no sub-tasks")
)

// Cross-cutting sentinel errors
var (
	// ErrTimeout marks any operation that ran out of time.
	ErrTimeout = New("operation timed out")
	// ErrCanceled marks an operation stopped by its caller.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput marks input that failed validation.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// The GauntletError Interface
// -----------------------------------------------------------------------------

// GauntletError is implemented by every error type in this package. It
// extends error with unwrapping and the classification accessors the
// helpers below rely on.
type GauntletError interface {
	error

	// Unwrap exposes the wrapped cause, nil when there is none.
	Unwrap() error

	// Is matches sentinel targets through the cause chain.
	Is(target error) bool

	// Severity grades the failure for display and logging.
	Severity() Severity

	// IsTransient reports whether a retried attempt may succeed.
	IsTransient() bool

	// IsUserFacing reports whether the message is printable as-is.
	IsUserFacing() bool
}

// baseError carries the fields every concrete error type shares.
// Embedding it satisfies most of GauntletError; concrete types add
// their own Error and Is.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	transient  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	return e.cause != nil && errors.Is(e.cause, target)
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsTransient() bool  { return e.transient }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// formatContext renders "label [k=v, ...]: message: cause", omitting
// empty fields, the bracket group when no field is set, and the cause
// when nil. All the bracketed error types format through this.
func formatContext(label string, pairs [][2]string, message string, cause error) string {
	var fields []string
	for _, kv := range pairs {
		if kv[1] != "" {
			fields = append(fields, kv[0]+"="+kv[1])
		}
	}

	out := label
	if len(fields) > 0 {
		out += " [" + strings.Join(fields, ", ") + "]"
	}
	out += ": " + message
	if cause != nil {
		out += ": " + cause.Error()
	}
	return out
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// RunError is an error in the lifecycle of a pipeline run.
//
// Example:
//
//	err := errors.NewRunError("run rejected", errors.ErrRunActive)
//	err = err.WithSubject("svc-api").WithStage("analysis")
//	fmt.Println(err) // "run error [subject=svc-api, stage=analysis]: run rejected: run already active for subject"
type RunError struct {
	baseError
	Subject string
	Stage   string
}

// NewRunError creates a RunError wrapping cause (which may be nil).
func NewRunError(message string, cause error) *RunError {
	return &RunError{baseError: baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}}
}

// WithSubject attaches the subject the run operates on.
func (e *RunError) WithSubject(subject string) *RunError { e.Subject = subject; return e }

// WithStage attaches the pipeline stage the run was in.
func (e *RunError) WithStage(stage string) *RunError { e.Stage = stage; return e }

// WithSeverity overrides the default SeverityError grade.
func (e *RunError) WithSeverity(s Severity) *RunError { e.severity = s; return e }

func (e *RunError) Error() string {
	return formatContext("run error", [][2]string{
		{"subject", e.Subject},
		{"stage", e.Stage},
	}, e.message, e.cause)
}

func (e *RunError) Is(target error) bool {
	_, ok := target.(*RunError)
	return ok || e.baseError.Is(target)
}

// CapabilityError is an error in capability registration or invocation
// plumbing. Failures produced by a capability itself are data, not
// errors; this type covers the machinery around them.
//
// Example:
//
//	err := errors.NewCapabilityError("lookup failed", errors.ErrUnknownCapability)
//	err = err.WithCapability("security_scan").WithStage("analysis")
type CapabilityError struct {
	baseError
	Capability string
	Stage      string
}

// NewCapabilityError creates a CapabilityError wrapping cause (which
// may be nil).
func NewCapabilityError(message string, cause error) *CapabilityError {
	return &CapabilityError{baseError: baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}}
}

// WithCapability attaches the capability name.
func (e *CapabilityError) WithCapability(name string) *CapabilityError { e.Capability = name; return e }

// WithStage attaches the pipeline stage.
func (e *CapabilityError) WithStage(stage string) *CapabilityError { e.Stage = stage; return e }

// WithTransient flags whether a retried attempt may succeed.
func (e *CapabilityError) WithTransient(t bool) *CapabilityError { e.transient = t; return e }

func (e *CapabilityError) Error() string {
	return formatContext("capability error", [][2]string{
		{"capability", e.Capability},
		{"stage", e.Stage},
	}, e.message, e.cause)
}

func (e *CapabilityError) Is(target error) bool {
	_, ok := target.(*CapabilityError)
	return ok || e.baseError.Is(target)
}

// DefectError is a fault escaping the phase runner's own logic rather
// than a sub-task. Defects are never retried and always fail the run
// regardless of phase policy.
//
// Example:
//
//	err := errors.NewDefectError("analysis", recovered)
type DefectError struct {
	baseError
	Stage     string
	Recovered any
}

// NewDefectError creates a DefectError from a value recovered during
// phase execution.
func NewDefectError(stage string, recovered any) *DefectError {
	return &DefectError{
		baseError: baseError{
			message:  fmt.Sprintf("runner panic: %v", recovered),
			severity: SeverityCritical,
		},
		Stage:     stage,
		Recovered: recovered,
	}
}

// WrapDefect creates a DefectError from an error returned by the
// runner machinery itself.
func WrapDefect(stage string, cause error) *DefectError {
	return &DefectError{
		baseError: baseError{
			message:  "runner fault",
			cause:    cause,
			severity: SeverityCritical,
		},
		Stage: stage,
	}
}

func (e *DefectError) Error() string {
	return formatContext("runner defect", [][2]string{{"stage", e.Stage}}, e.message, e.cause)
}

func (e *DefectError) Is(target error) bool {
	_, ok := target.(*DefectError)
	return ok || e.baseError.Is(target)
}

// PolicyError is a blueprint misconfiguration. These surface when an
// engine is constructed, before any run starts.
//
// Example:
//
//	err := errors.NewPolicyError("unsupported policy value", errors.ErrUnknownPolicy)
//	err = err.WithPhase("analysis").WithField("policy")
type PolicyError struct {
	baseError
	Blueprint string
	Phase     string
	Field     string
}

// NewPolicyError creates a PolicyError wrapping cause (which may be
// nil).
func NewPolicyError(message string, cause error) *PolicyError {
	return &PolicyError{baseError: baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}}
}

// WithBlueprint attaches the blueprint name.
func (e *PolicyError) WithBlueprint(name string) *PolicyError { e.Blueprint = name; return e }

// WithPhase attaches the offending phase.
func (e *PolicyError) WithPhase(phase string) *PolicyError { e.Phase = phase; return e }

// WithField attaches the offending field.
func (e *PolicyError) WithField(field string) *PolicyError { e.Field = field; return e }

func (e *PolicyError) Error() string {
	return formatContext("policy error", [][2]string{
		{"blueprint", e.Blueprint},
		{"phase", e.Phase},
		{"field", e.Field},
	}, e.message, e.cause)
}

func (e *PolicyError) Is(target error) bool {
	if _, ok := target.(*PolicyError); ok {
		return true
	}
	return errors.Is(target, ErrBlueprintInvalid) || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Shared Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError reports a missing resource.
//
// Example:
//
//	err := errors.NewNotFoundError("subject", "svc-api")
//	fmt.Println(err) // "subject 'svc-api' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause attaches the underlying error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError { e.cause = cause; return e }

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok || e.baseError.Is(target)
}

// AlreadyExistsError reports a duplicate resource.
//
// Example:
//
//	err := errors.NewAlreadyExistsError("subject", "svc-api")
//	fmt.Println(err) // "subject 'svc-api' already exists"
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates an AlreadyExistsError for the given
// resource.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause attaches the underlying error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError { e.cause = cause; return e }

func (e *AlreadyExistsError) Error() string {
	msg := fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *AlreadyExistsError) Is(target error) bool {
	_, ok := target.(*AlreadyExistsError)
	return ok || e.baseError.Is(target)
}

// ValidationError reports invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("subject ID cannot be empty")
//	err = err.WithField("subjectID")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError: baseError{
		message:    message,
		severity:   SeverityWarning,
		userFacing: true,
	}}
}

// WithField attaches the offending field.
func (e *ValidationError) WithField(field string) *ValidationError { e.Field = field; return e }

// WithValue attaches the rejected value.
func (e *ValidationError) WithValue(value any) *ValidationError { e.Value = value; return e }

// WithCause attaches the underlying error.
func (e *ValidationError) WithCause(cause error) *ValidationError { e.cause = cause; return e }

func (e *ValidationError) Error() string {
	pairs := [][2]string{{"field", e.Field}}
	if e.Value != nil {
		pairs = append(pairs, [2]string{"value", fmt.Sprint(e.Value)})
	}
	return formatContext("validation error", pairs, e.message, e.cause)
}

func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return errors.Is(target, ErrInvalidInput) || e.baseError.Is(target)
}

// TimeoutError reports an operation that outran its window. Timeouts
// classify as transient: a later attempt may fit.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for analysis phase", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for analysis phase (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a TimeoutError for the given operation and
// window.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			transient:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause attaches the underlying error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError { e.cause = cause; return e }

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return errors.Is(target, ErrTimeout) || e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Transience Markers
// -----------------------------------------------------------------------------

// transientMark wraps an error to flag it as transient without changing
// its message.
type transientMark struct{ err error }

func (e *transientMark) Error() string { return e.err.Error() }
func (e *transientMark) Unwrap() error { return e.err }

// permanentMark wraps an error to flag it as permanent, overriding any
// transient classification further down the chain.
type permanentMark struct{ err error }

func (e *permanentMark) Error() string { return e.err.Error() }
func (e *permanentMark) Unwrap() error { return e.err }

// Transient marks err as a transient failure. The capability invoker
// classifies marked errors as retryable failure outcomes.
//
// Example:
//
//	return nil, errors.Transient(fmt.Errorf("registry returned 503"))
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientMark{err: err}
}

// Permanent marks err as a permanent failure, even when a wrapped error
// would otherwise classify as transient.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentMark{err: err}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsTransient reports whether the error may succeed on a retried
// attempt. A Permanent mark anywhere in the chain wins over transient
// signals below it; after that, a Transient mark, a GauntletError's own
// classification, and finally ErrTimeout decide.
//
// Example:
//
//	if errors.IsTransient(err) {
//	    return retry(operation)
//	}
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var (
		perm *permanentMark
		mark *transientMark
		gerr GauntletError
	)
	switch {
	case As(err, &perm):
		return false
	case As(err, &mark):
		return true
	case As(err, &gerr):
		return gerr.IsTransient()
	default:
		return Is(err, ErrTimeout)
	}
}

// IsUserFacing reports whether the error message is safe to show end
// users. Every error built by this package answers through its own
// classification; anything else is treated as internal. The CLI prints
// user-facing messages verbatim and hides the rest behind a generic
// line plus a log entry.
func IsUserFacing(err error) bool {
	var gerr GauntletError
	if err == nil || !As(err, &gerr) {
		return false
	}
	return gerr.IsUserFacing()
}

// GetSeverity returns the severity of the error: the error's own grade
// for GauntletErrors, SeverityError for anything else non-nil.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var gerr GauntletError
	if As(err, &gerr) {
		return gerr.Severity()
	}
	return SeverityError
}

// IsDefect reports whether the error chain contains a DefectError.
// Defects fail a run regardless of phase policy.
func IsDefect(err error) bool {
	if err == nil {
		return false
	}
	var defect *DefectError
	return As(err, &defect)
}

// -----------------------------------------------------------------------------
// Wrap Helpers
// -----------------------------------------------------------------------------

// Wrap prefixes err with a context message, passing nil through.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to persist checkpoint")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to run subject %s", subjectID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
