// Package event carries the notifications gauntlet components exchange
// while a run executes.
//
// The pipeline engine and the trigger dispatcher publish without
// knowing who is listening; the run and serve commands subscribe to
// narrate progress, and tests subscribe to observe the engine from the
// outside.
//
// A [Bus] dispatches synchronously: Publish invokes every matching
// [Handler] on the publishing goroutine and returns once the last one
// has. Handlers that panic are logged and skipped rather than unwinding
// the publisher, so one broken observer cannot take down a run.
//
// Subscriptions are keyed by the event type string, or by "*" via
// [Bus.SubscribeAll] for observers that want the whole stream (the
// serve command narrates runs this way). Typical wiring:
//
//	bus := event.NewBus()
//	bus.Subscribe("run.stage_changed", func(e event.Event) {
//	    changed := e.(event.StageChangedEvent)
//	    log.Printf("run %s entered %s", changed.SubjectID, changed.CurrentStage)
//	})
//	bus.Publish(event.NewRunStartedEvent("svc-api", "default", 5))
//
//	token := bus.Subscribe("run.completed", handler)
//	defer bus.Unsubscribe(token)
//
// Event types follow "category.action":
//
//   - run.started, run.stage_changed, run.checkpoint, run.completed
//   - capability.status_changed
//   - trigger.accepted, trigger.rejected, trigger.queued
package event
