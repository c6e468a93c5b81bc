// Package eventbus implements the aggregation core's in-process domain
// event bus: synchronous publish/subscribe with per-type and global
// handlers, isolated handler failures, and idempotent unsubscribe.
package eventbus

import (
	"sync"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/logging"
)

// Handler processes a published event. A handler that returns an error is
// logged but never interrupts publication to its siblings.
type Handler func(event domain.Event) error

// Unsubscribe removes a previously registered handler. Calling it more
// than once is a no-op.
type Unsubscribe func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher. The zero value is not
// usable; construct with New.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	byType map[domain.EventType][]subscription
	global []subscription
	logger *logging.Logger
}

// New constructs an empty Bus. A nil logger falls back to the package's
// global logger.
func New(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Bus{
		byType: make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for events of the given type and returns an
// idempotent unsubscribe handle. A nil Bus (no event bus supplied by the
// host) accepts the subscription as a permanent no-op.
func (b *Bus) Subscribe(eventType domain.EventType, h Handler) Unsubscribe {
	if b == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.byType[eventType] = append(b.byType[eventType], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.byType[eventType] = removeByID(b.byType[eventType], id)
		})
	}
}

// SubscribeAll registers h as a global subscriber, invoked for every
// published event regardless of type. Returns an idempotent unsubscribe
// handle. A nil Bus accepts the subscription as a permanent no-op.
func (b *Bus) SubscribeAll(h Handler) Unsubscribe {
	if b == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.global = append(b.global, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.global = removeByID(b.global, id)
		})
	}
}

// Publish invokes every handler subscribed to event.Type plus every
// global subscriber, synchronously and in registration order. A handler
// failure is logged and never interrupts publication to its siblings. A
// nil Bus makes Publish a no-op, so every component that accepts a *Bus
// works unchanged when a host declines to wire one in.
func (b *Bus) Publish(event domain.Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	handlers := make([]subscription, 0, len(b.byType[event.Type])+len(b.global))
	handlers = append(handlers, b.byType[event.Type]...)
	handlers = append(handlers, b.global...)
	b.mu.Unlock()

	for _, sub := range handlers {
		func() {
			fields := map[string]interface{}{"eventType": string(event.Type), "eventId": event.ID}
			defer func() {
				if r := recover(); r != nil {
					b.logger.WithFields(fields).WithField("recover", r).Error("eventbus: handler panicked")
				}
			}()
			if err := sub.handler(event); err != nil {
				b.logger.WithFields(fields).WithError(err).Error("eventbus: handler failed")
			}
		}()
	}
}

func removeByID(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
