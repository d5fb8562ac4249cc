// Package capability provides the invocation layer between the pipeline
// engine and the tools that do actual work on a subject.
//
// A capability is a named function with the [Func] signature. Capabilities
// are registered once at startup in a [Registry] and referenced by name
// from blueprint sub-tasks. The [Invoker] dispatches invocations with a
// deadline and converts every possible failure path into data.
//
// # Outcomes, not errors
//
// [Invoker.Invoke] never returns an error and never panics. Each call
// yields an [Outcome] holding either a [Payload] or a [Failure]:
//
//	outcome := invoker.Invoke(ctx, "security_scan", req, 30*time.Second)
//	if !outcome.Succeeded() {
//	    switch outcome.Failure.Kind {
//	    case capability.KindTransient:
//	        // eligible for retry
//	    case capability.KindTimeout, capability.KindPermanent:
//	        // record and move on
//	    }
//	}
//
// Failure kinds:
//
//   - [KindTimeout]: the deadline expired or ctx was canceled
//   - [KindTransient]: the error was marked retryable
//   - [KindPermanent]: everything else, including recovered panics
//
// Retry policy lives in the caller; an invoker runs each invocation
// exactly once.
//
// # Builtin capabilities
//
// [RegisterBuiltins] installs mock implementations of the standard
// analysis toolchain (source_inventory, security_scan, coverage_report
// and friends). Their payloads are deterministic per subject, and the
// shared "delay" and "fail" params make them steerable from blueprints
// for demos and tests.
package capability
