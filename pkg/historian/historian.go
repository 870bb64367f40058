// Package historian receives measurements from the transport and writes them
// to a store.
//
// The Historian subscribes to the measurement namespace whenever the
// transport (re)connects, decodes inbound messages into typed records and
// queues them. A Drain empties the queue into a store.Executor on a fixed
// cadence.
package historian

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-hostwatch/pkg/eventbus"
	"github.com/illmade-knight/go-hostwatch/pkg/events"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/illmade-knight/go-hostwatch/pkg/topicmatch"
	"github.com/rs/zerolog"
)

// Historian bridges bus events to the ingestion queue.
type Historian struct {
	bus    *eventbus.Bus
	queue  *Queue
	opts   options
	logger zerolog.Logger

	mu          sync.Mutex
	unsubscribe []func()
}

// New creates a Historian. Routes are validated here so a bad filter fails
// at startup.
func New(bus *eventbus.Bus, queue *Queue, logger zerolog.Logger, opts ...Option) (*Historian, error) {
	if bus == nil {
		return nil, errors.New("historian: bus cannot be nil")
	}
	if queue == nil {
		return nil, errors.New("historian: queue cannot be nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	for i, r := range o.routes {
		if r.Statement == "" {
			return nil, fmt.Errorf("historian: route %d has no statement", i)
		}
		if len(r.Topics) == 0 {
			return nil, fmt.Errorf("historian: route %d has no topics", i)
		}
		for _, f := range r.Topics {
			if !topicmatch.Valid(f) {
				return nil, fmt.Errorf("historian: route %d has invalid topic filter %q", i, f)
			}
		}
	}
	return &Historian{
		bus:    bus,
		queue:  queue,
		opts:   o,
		logger: logger.With().Str("component", "Historian").Logger(),
	}, nil
}

// Filters returns every topic filter the historian subscribes to.
func (h *Historian) Filters() []string {
	filters := []string{measurement.Filter()}
	for _, r := range h.opts.routes {
		filters = append(filters, r.Topics...)
	}
	return filters
}

// Start registers the historian's bus handlers.
func (h *Historian) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe != nil {
		return errors.New("historian already started")
	}
	h.unsubscribe = []func(){
		eventbus.Subscribe(h.bus, h.onConnectionEstablished),
		eventbus.Subscribe(h.bus, h.onPublishReceived),
		eventbus.Subscribe(h.bus, h.onInboundMeasurement),
	}
	h.logger.Info().Strs("filters", h.Filters()).Msg("Historian started.")
	return nil
}

// Stop removes the bus handlers. Queued records are left for the Drain.
func (h *Historian) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, unsub := range h.unsubscribe {
		unsub()
	}
	h.unsubscribe = nil
	h.logger.Info().Msg("Historian stopped.")
}

// onConnectionEstablished subscribes on every connect; a clean session
// forgets previous subscriptions.
func (h *Historian) onConnectionEstablished(ctx context.Context, _ events.ConnectionEstablished) error {
	var errs []error
	for _, f := range h.Filters() {
		if err := h.bus.Publish(ctx, events.SubscribeRequest{Filter: f, QoS: h.opts.qos}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Historian) onPublishReceived(ctx context.Context, msg events.PublishReceived) error {
	if topicmatch.Matches(measurement.Filter(), msg.Topic) {
		m, err := measurement.Decode(msg.Topic, msg.Payload)
		switch {
		case err == nil:
			return h.bus.Publish(ctx, events.InboundMeasurement{Item: m})
		case !errors.Is(err, measurement.ErrUnknownTopic):
			h.opts.metrics.Ignored()
			h.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Dropping undecodable measurement.")
			return nil
		}
	}

	for _, r := range h.opts.routes {
		if !matchesAny(r.Topics, msg.Topic) {
			continue
		}
		g, err := measurement.DecodeGeneric(msg.Topic, r.Statement, msg.Payload, h.opts.clock.Now())
		if err != nil {
			h.opts.metrics.Ignored()
			h.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Dropping invalid JSON on generic route.")
			return nil
		}
		return h.bus.Publish(ctx, events.InboundMeasurement{Item: g})
	}

	h.opts.metrics.Ignored()
	h.logger.Debug().Str("topic", msg.Topic).Msg("Ignoring message on unrouted topic.")
	return nil
}

func (h *Historian) onInboundMeasurement(_ context.Context, in events.InboundMeasurement) error {
	if in.Item == nil {
		return errors.New("historian: inbound measurement without item")
	}
	h.queue.Enqueue(measurement.NewRecord(in.Item, h.opts.clock.Now()))
	h.opts.metrics.SetQueueDepth(h.queue.Len())
	return nil
}

func matchesAny(filters []string, topic string) bool {
	for _, f := range filters {
		if topicmatch.Matches(f, topic) {
			return true
		}
	}
	return false
}
