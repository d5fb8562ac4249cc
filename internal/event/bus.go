package event

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler receives a published event. Handlers run synchronously on the
// publisher's goroutine, so anything slow should hand off to its own
// goroutine rather than stall the pipeline that emitted the event.
type Handler func(Event)

// wildcardTopic matches every event type. SubscribeAll registers under it.
const wildcardTopic = "*"

type subscription struct {
	id string
	fn Handler
}

// Bus fans run lifecycle, capability, and trigger events out to
// subscribers. The engine publishes as state changes happen and the TUI,
// logs, and sink listen without referencing each other.
//
// Delivery order per event: handlers subscribed to the exact type first,
// in registration order, then wildcard handlers in registration order.
// A panicking handler is recovered and logged; the rest still run.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID atomic.Uint64
}

// NewBus returns an empty bus ready for subscriptions.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for events of the given type and returns a
// token for Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, fn: handler})
	return id
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcardTopic, handler)
}

// Unsubscribe removes the subscription with the given token. It reports
// whether a subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[eventType]) == 0 {
				delete(b.subs, eventType)
			}
			return true
		}
	}
	return false
}

// Publish delivers an event to matching subscribers. The subscriber list
// is snapshotted under the read lock, so handlers may subscribe or
// unsubscribe without deadlocking.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	exact := b.subs[eventType]
	wild := b.subs[wildcardTopic]
	fns := make([]Handler, 0, len(exact)+len(wild))
	for _, s := range exact {
		fns = append(fns, s.fn)
	}
	for _, s := range wild {
		fns = append(fns, s.fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		dispatch(fn, event)
	}
}

// dispatch invokes one handler, converting a panic into a log line so a
// broken subscriber cannot take down the run that published the event.
func dispatch(fn Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event: handler panic on %s: %v\n%s", event.EventType(), r, debug.Stack())
		}
	}()
	fn(event)
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// SubscriptionCount returns the number of active subscriptions across
// all event types.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
