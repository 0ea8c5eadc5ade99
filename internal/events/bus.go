package events

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Handler receives published events.
type Handler func(e Event)

// Bus is a synchronous in-process pub/sub bus. Handlers run on the
// publisher's goroutine; they must not block.
type Bus struct {
	mu sync.RWMutex

	handlers    map[Type]map[string]Handler
	allHandlers map[string]Handler
	nextID      atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		handlers:    make(map[Type]map[string]Handler),
		allHandlers: make(map[string]Handler),
	}
}

func (b *Bus) newSubscriptionID() string {
	return fmt.Sprintf("sub-%d", b.nextID.Add(1))
}

// Subscribe registers a handler for one event type. Returns a
// subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(t Type, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.newSubscriptionID()
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[string]Handler)
	}
	b.handlers[t][id] = h
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.newSubscriptionID()
	b.allHandlers[id] = h
	return id
}

// Unsubscribe removes a subscription by id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.allHandlers, id)
	for _, m := range b.handlers {
		delete(m, id)
	}
}

// HasSubscribers reports whether any handler would receive events of
// the given type.
func (b *Bus) HasSubscribers(t Type) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.allHandlers) > 0 {
		return true
	}
	return len(b.handlers[t]) > 0
}

// Publish converts a typed event and dispatches it.
func (b *Bus) Publish(e Eventer) {
	b.PublishRaw(e.ToEvent())
}

// PublishRaw dispatches a pre-built event.
func (b *Bus) PublishRaw(e Event) {
	b.mu.RLock()
	typed := make([]Handler, 0, len(b.handlers[e.Type]))
	for _, h := range b.handlers[e.Type] {
		typed = append(typed, h)
	}
	all := make([]Handler, 0, len(b.allHandlers))
	for _, h := range b.allHandlers {
		all = append(all, h)
	}
	b.mu.RUnlock()

	for _, h := range typed {
		h(e)
	}
	for _, h := range all {
		h(e)
	}
}

// Clear removes every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[Type]map[string]Handler)
	b.allHandlers = make(map[string]Handler)
}
