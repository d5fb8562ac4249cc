package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/logging"
)

// Payload is the structured result blob a capability produces.
// Payloads are treated as opaque data by the engine; only capabilities
// and report renderers interpret their contents.
type Payload map[string]any

// Clone returns a shallow copy of the payload. Nested values are shared,
// callers that mutate nested structures must copy them first.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// FailureKind classifies why a capability invocation failed.
type FailureKind string

const (
	// KindTimeout marks invocations that exceeded their deadline or were
	// canceled mid-flight.
	KindTimeout FailureKind = "timeout"

	// KindTransient marks failures that may succeed on a retried attempt.
	KindTransient FailureKind = "transient"

	// KindPermanent marks failures that will not succeed on retry,
	// including panics recovered from capability code.
	KindPermanent FailureKind = "permanent"
)

// Failure is the recovered-failure value an invocation produces instead
// of an error. The invoker never lets a capability failure escape as an
// error or panic; callers branch on the outcome instead.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// String renders the failure as "kind: message".
func (f *Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Request carries the inputs a capability receives when invoked.
type Request struct {
	// SubjectID identifies the subject the pipeline run operates on.
	SubjectID string

	// Phase is the name of the phase dispatching this invocation.
	Phase string

	// Subtask is the sub-task name within the phase. Usually equal to the
	// capability name unless the blueprint declares an alias.
	Subtask string

	// Params holds static invocation parameters from the blueprint.
	Params map[string]any

	// Prior exposes payloads accumulated earlier in the run, keyed by
	// phase name and then sub-task name. In a sequential phase, outputs
	// of earlier sibling sub-tasks appear under the running phase's name.
	Prior map[string]map[string]Payload
}

// PriorPayload looks up a payload produced earlier in the run.
func (r Request) PriorPayload(phase, subtask string) (Payload, bool) {
	outputs, ok := r.Prior[phase]
	if !ok {
		return nil, false
	}
	p, ok := outputs[subtask]
	return p, ok
}

// Func is the signature all capabilities implement. Implementations
// should honor ctx cancellation; the invoker abandons invocations whose
// deadline expires and records them as timeout failures.
type Func func(ctx context.Context, req Request) (Payload, error)

// Outcome is the result of a single invocation. Exactly one of Payload
// and Failure is set.
type Outcome struct {
	Payload  Payload
	Failure  *Failure
	Duration time.Duration
}

// Succeeded reports whether the invocation produced a payload.
func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Invoker dispatches capability invocations with timeout enforcement and
// failure classification. It never panics and never returns an error:
// every failure path is converted into an Outcome carrying a Failure.
// Retry is the caller's responsibility, the invoker runs each invocation
// exactly once.
type Invoker struct {
	registry       *Registry
	logger         *logging.Logger
	defaultTimeout time.Duration
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithLogger sets the logger used for invocation tracing.
func WithLogger(logger *logging.Logger) InvokerOption {
	return func(iv *Invoker) {
		if logger != nil {
			iv.logger = logger
		}
	}
}

// WithDefaultTimeout sets the deadline applied when a request carries no
// explicit timeout. Zero disables the default deadline.
func WithDefaultTimeout(d time.Duration) InvokerOption {
	return func(iv *Invoker) {
		iv.defaultTimeout = d
	}
}

// NewInvoker creates an Invoker backed by the given registry.
func NewInvoker(registry *Registry, opts ...InvokerOption) (*Invoker, error) {
	if registry == nil {
		return nil, errors.New("capability: Registry is required")
	}

	iv := &Invoker{
		registry: registry,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv, nil
}

// invokeResult carries a capability's return values across the dispatch
// goroutine boundary.
type invokeResult struct {
	payload Payload
	err     error
}

// Invoke runs the named capability with the given request and timeout.
// A non-positive timeout falls back to the invoker's default; if both are
// non-positive the invocation runs without a deadline.
//
// The outcome is always well-formed: a missing registration yields a
// permanent failure, an expired deadline or canceled ctx yields a timeout
// failure, and a recovered panic yields a permanent failure. Cancellation
// of ctx is deliberately reported as a timeout failure so that callers
// observe one uniform "did not finish" kind.
func (iv *Invoker) Invoke(ctx context.Context, name string, req Request, timeout time.Duration) Outcome {
	start := time.Now()
	log := iv.logger.WithCapability(name)

	fn, ok := iv.registry.Lookup(name)
	if !ok {
		log.Warn("invocation of unregistered capability", "subtask", req.Subtask)
		return Outcome{
			Failure:  &Failure{Kind: KindPermanent, Message: fmt.Sprintf("capability not registered: %s", name)},
			Duration: time.Since(start),
		}
	}

	if timeout <= 0 {
		timeout = iv.defaultTimeout
	}

	invokeCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resCh := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- invokeResult{err: errors.Permanent(fmt.Errorf("capability panic: %v", r))}
			}
		}()
		payload, err := fn(invokeCtx, req)
		resCh <- invokeResult{payload: payload, err: err}
	}()

	select {
	case res := <-resCh:
		duration := time.Since(start)
		if res.err != nil {
			failure := &Failure{Kind: classify(invokeCtx, res.err), Message: res.err.Error()}
			log.Debug("invocation failed", "kind", string(failure.Kind), "duration_ms", duration.Milliseconds())
			return Outcome{Failure: failure, Duration: duration}
		}
		log.Debug("invocation completed", "duration_ms", duration.Milliseconds())
		return Outcome{Payload: res.payload, Duration: duration}

	case <-invokeCtx.Done():
		// The capability goroutine is abandoned; well-behaved
		// capabilities observe ctx and return shortly after.
		duration := time.Since(start)
		failure := &Failure{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("capability %s did not finish within %s", name, timeoutLabel(timeout)),
		}
		log.Warn("invocation timed out", "timeout", timeoutLabel(timeout), "duration_ms", duration.Milliseconds())
		return Outcome{Failure: failure, Duration: duration}
	}
}

// classify maps an invocation error to a failure kind. Deadline and
// cancellation errors are timeouts, marked or retryable errors are
// transient, everything else is permanent.
func classify(ctx context.Context, err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	if ctx.Err() != nil {
		return KindTimeout
	}
	if errors.IsTransient(err) {
		return KindTransient
	}
	return KindPermanent
}

// timeoutLabel renders the effective deadline for failure messages.
func timeoutLabel(timeout time.Duration) string {
	if timeout <= 0 {
		return "deadline"
	}
	return timeout.String()
}
