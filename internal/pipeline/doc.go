// Package pipeline implements the engine that drives registered
// subjects through the workflow stages a blueprint declares.
//
// # Engine and runs
//
// [New] validates the blueprint and its capability references up
// front, so a bad configuration is rejected before any run starts.
// [Engine.Start] launches a run and returns a [Run] handle for
// polling, waiting, and cancellation; [Engine.Run] is the blocking
// convenience on top of it. Runs for different subjects proceed fully
// concurrently. A second request for a subject whose run is still in
// flight is rejected with an error matching [errors.ErrRunActive].
//
// # Phase execution
//
// Independent sub-tasks of a phase fan out concurrently and the phase
// joins on all of them; sequential phases run their sub-tasks in
// declaration order, each seeing its predecessors' outputs. A sub-task
// failure is data, recorded and weighed against the phase's policy:
// all_must_succeed halts the run at the end of the phase, best_effort
// records the failure and keeps going. Runner defects, such as a
// panicking capability driver or a double merge, fail the run
// regardless of policy.
//
// # State ownership
//
// Run state is owned by the engine goroutine. Sub-task workers never
// touch it; their results join into a single merge per phase. Handles
// hand out deep snapshots, and mid-phase progress is visible through
// the state's status board, which locks independently.
package pipeline
