// Package trigger admits run requests into the pipeline engine.
//
// # Admission
//
// [Dispatcher.Submit] asks the engine for a run and maps the result to
// a [Disposition]. Idle subjects start immediately. A subject whose run
// is still active is handled by the configured [Policy]: reject refuses
// with the engine's run-active error, queue parks the request and
// launches it once the active run finishes. Queued requests for the
// same subject collapse into a single pending run, so a burst of
// triggers costs one extra run at most. Every admission decision is
// published on the event bus.
//
// # Spool triggers
//
// [Watcher] turns files dropped into a spool directory into requests: a
// file named "subj.run" asks for a run of subject "subj". Trigger files
// are removed before submission, so each fires at most once, and files
// left over from a previous process are swept up on [Watcher.Start].
package trigger
