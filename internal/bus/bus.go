package bus

import (
	"log/slog"
	"sync"
)

// MessageBus is the in-process EventPublisher.
// Handlers run synchronously on the broadcasting goroutine, so they must not block.
type MessageBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates an empty bus.
func New() *MessageBus {
	return &MessageBus{handlers: make(map[string]EventHandler)}
}

func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, event)
	}
}

func (b *MessageBus) dispatch(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: event handler panicked", "event", event.Name, "panic", r)
		}
	}()
	h(event)
}

// SubscriberCount returns the number of active subscriptions.
func (b *MessageBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
