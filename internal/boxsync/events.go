package boxsync

import (
	"fmt"
	"sync"
)

// EventType identifies one of the two notifications the core emits.
type EventType string

const (
	// EventServiceChange signals a membership change; the payload is the
	// full list of services fetched from the box.
	EventServiceChange EventType = "service-change"

	// EventServiceStateChange signals that one service was added or changed.
	EventServiceStateChange EventType = "service-state-change"
)

// Event is a notification dispatched on the Bus.
// Services is set for EventServiceChange, Service for EventServiceStateChange.
type Event struct {
	Type     EventType
	Services []Service
	Service  *Service
}

// Handler receives events. Handlers run synchronously on the dispatching
// goroutine and should not block.
type Handler func(Event)

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	typ     EventType
	handler Handler
}

// Bus fans events out to subscribers.
//
// Delivery is synchronous and in subscription order. Dispatch works on a
// snapshot of the subscriber list, so subscribing or unsubscribing from
// within a handler only affects later dispatches. A panicking handler is
// logged and skipped; the remaining subscribers still receive the event.
type Bus struct {
	logger Logger

	mu     sync.Mutex
	nextID SubscriptionID
	subs   []subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{logger: noopLogger{}}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// Subscribe registers handler for events of type t.
func (b *Bus) Subscribe(t EventType, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, typ: t, handler: handler})
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			// Copy rather than shift in place: a dispatch may hold the old slice.
			subs := make([]subscriber, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Dispatch delivers e to every subscriber of e.Type registered at call time.
func (b *Bus) Dispatch(e Event) {
	b.mu.Lock()
	snapshot := b.subs
	b.mu.Unlock()

	for _, s := range snapshot {
		if s.typ == e.Type {
			b.deliver(s, e)
		}
	}
}

func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", e.Type,
				"subscription", s.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	s.handler(e)
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}
