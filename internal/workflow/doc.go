// Package workflow defines the run state model for the pipeline: the
// stage machine, the per-run [State] record, and the result types phases
// produce.
//
// # Stages
//
// A subject moves through the working stages in a fixed forward order:
//
//	initialization -> analysis -> testing -> quality_gates -> deployment_prep
//
// and ends in one of two terminal stages, completed or failed. Blueprints
// may declare a subset of the working stages, so [ValidTransitions]
// permits forward skips but never backward moves. Terminal stages accept
// no transitions at all.
//
// # State ownership
//
// [State] is owned by the engine goroutine running the pipeline. Phase
// sub-tasks execute concurrently but never write to State; they produce
// [SubtaskResult] values that the engine merges through
// [State.ApplyPhase] after the phase joins. Everything handed to
// observers goes through [State.Clone].
//
// The only shared piece is the [StatusBoard], which is internally locked
// so that TUI and status commands can poll capability progress while a
// phase is mid-flight.
//
// # Bookkeeping invariants
//
//   - Results and Errors are append-only; a phase merges exactly once.
//   - Metrics.TotalDuration equals the sum of Metrics.PhaseDurations.
//   - Every stage change is recorded in History.
package workflow
