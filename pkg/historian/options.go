package historian

import (
	"context"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/illmade-knight/go-hostwatch/pkg/metrics"
	"github.com/jonboulle/clockwork"
)

// DefaultDrainInterval is the pause between drain passes.
const DefaultDrainInterval = time.Second

// LatestCache receives a snapshot of every successfully persisted record.
// cache.SnapshotCache satisfies it.
type LatestCache interface {
	Set(ctx context.Context, s measurement.Snapshot) error
}

// Route stores raw JSON published on any of Topics with Statement.
type Route struct {
	Topics    []string `mapstructure:"topics" yaml:"topics"`
	Statement string   `mapstructure:"statement" yaml:"statement"`
}

type options struct {
	interval time.Duration
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	latest   LatestCache
	routes   []Route
	qos      byte
}

func defaultOptions() options {
	return options{
		interval: DefaultDrainInterval,
		clock:    clockwork.NewRealClock(),
		qos:      1,
	}
}

// Option configures a Drain or a Historian. Options that do not apply to the
// component being built are ignored.
type Option func(*options)

// WithInterval sets the pause between drain passes.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records queue depth and persistence outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLatestCache publishes persisted records to c.
func WithLatestCache(c LatestCache) Option {
	return func(o *options) { o.latest = c }
}

// WithRoutes adds generic JSON routes.
func WithRoutes(routes ...Route) Option {
	return func(o *options) { o.routes = append(o.routes, routes...) }
}

// WithSubscribeQoS sets the QoS of the historian's subscriptions.
func WithSubscribeQoS(qos byte) Option {
	return func(o *options) {
		if qos <= 2 {
			o.qos = qos
		}
	}
}
