package engine

import (
	"sync"
	"time"
)

// subscription pairs a handler with an optional type filter.
type subscription struct {
	fn    func(Event)
	types map[EventType]bool // nil means all types
}

// EventBus delivers Engine events to registered subscribers. Handlers run
// synchronously on the emitting goroutine and must not block.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]subscription),
	}
}

// Subscribe registers a handler for all events. Returns a subscriber id.
func (b *EventBus) Subscribe(fn func(Event)) int {
	return b.subscribe(fn, nil)
}

// SubscribeTypes registers a handler for the given event types only.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) int {
	filter := make(map[EventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return b.subscribe(fn, filter)
}

func (b *EventBus) subscribe(fn func(Event), types map[EventType]bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = subscription{fn: fn, types: types}
	return id
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Emit delivers an event to matching subscribers. The timestamp is set if
// the caller left it zero.
func (b *EventBus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.types == nil || sub.types[e.Type] {
			handlers = append(handlers, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}
