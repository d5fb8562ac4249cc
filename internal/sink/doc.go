// Package sink records run progress for registered subjects.
//
// A [Sink] receives the engine's lifecycle marks: in progress before the
// first phase, then exactly one of completed or failed. All marks are
// idempotent so that retried teardown paths cannot corrupt status.
//
// Two implementations are provided. [Memory] keeps everything in maps
// and is meant for tests and ephemeral runs. [FileStore] persists the
// subject registry, final run states, and per-phase artifacts as JSON
// under a state directory, using atomic renames and an flock(2) lock so
// that several gauntlet processes can share it.
//
// Sinks that also implement [Checkpointer] additionally receive each
// phase's result as it completes. The engine discovers the capability by
// type assertion; plain sinks are never required to implement it.
package sink
