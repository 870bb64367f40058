// Package eventbus is an in-process, synchronous publish/subscribe bus keyed
// by event type.
//
// Publish invokes every handler subscribed to the event's concrete type, in
// subscription order, on the publishing goroutine. When Publish returns, all
// handlers have returned. Handlers may publish further events; those are
// delivered depth-first before the outer Publish continues.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

type handlerFunc func(ctx context.Context, event any) error

type subscription struct {
	id      uint64
	handler handlerFunc
}

// Bus routes events to the handlers registered for their type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]subscription
	nextID   uint64
	logger   zerolog.Logger
}

// New creates an empty Bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]subscription),
		logger:   logger.With().Str("component", "EventBus").Logger(),
	}
}

// Subscribe registers fn for events of type E and returns a function that
// removes the registration.
func Subscribe[E any](b *Bus, fn func(ctx context.Context, event E) error) (unsubscribe func()) {
	eventType := reflect.TypeFor[E]()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{
		id: id,
		handler: func(ctx context.Context, event any) error {
			return fn(ctx, event.(E))
		},
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to its subscribers. Handler errors and panics are
// logged and joined into the returned error; a failing handler does not stop
// delivery to the ones after it.
func (b *Bus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return errors.New("eventbus: cannot publish a nil event")
	}
	eventType := reflect.TypeOf(event)

	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[eventType]))
	copy(subs, b.handlers[eventType])
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Trace().Str("event", eventType.String()).Msg("No subscribers for event.")
		return nil
	}

	var errs []error
	for _, s := range subs {
		if err := b.invoke(ctx, s.handler, event); err != nil {
			b.logger.Error().Err(err).Str("event", eventType.String()).Msg("Event handler failed.")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasSubscribers reports whether any handler is registered for type E.
func HasSubscribers[E any](b *Bus) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[reflect.TypeFor[E]()]) > 0
}

func (b *Bus) invoke(ctx context.Context, h handlerFunc, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}
