// Package eventbus provides in-process fan-out of typed state-change
// notifications. Components publish without knowing their subscribers; the
// status streamers subscribe without coupling to the cabins.
package eventbus

import (
	"log/slog"
	"sync"
)

// Topic identifies a class of notifications.
type Topic int

const (
	// TopicCabinStateChanged fires when a cabin's motion/door state changes.
	TopicCabinStateChanged Topic = iota
	// TopicCabinFloorChanged fires when a cabin crosses a floor boundary.
	TopicCabinFloorChanged
	// TopicCallCompleted fires when a hall call has been fully serviced.
	TopicCallCompleted
	// TopicFloorArrived fires when a car call has been fully serviced.
	TopicFloorArrived
)

// Handler receives a published payload. Dispatch is synchronous on the
// publisher's goroutine; handlers must not block.
type Handler func(payload interface{})

// Bus is a synchronous publish/subscribe fan-out.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	logger   *slog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[Topic][]Handler),
		logger:   slog.With(slog.String("component", "eventbus")),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], handler)
	index := len(b.handlers[topic]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.handlers[topic]
		if index < len(handlers) && handlers[index] != nil {
			handlers[index] = nil
		}
	}
}

// Publish delivers the payload to every live handler of the topic. A
// panicking handler is logged and does not poison the remaining handlers.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		b.dispatch(topic, h, payload)
	}
}

func (b *Bus) dispatch(topic Topic, h Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.Int("topic", int(topic)),
				slog.Any("panic", r))
		}
	}()
	h(payload)
}
