// Package metrics holds the Prometheus collectors of the agent. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hostwatch"

// Metrics contains all agent metrics.
type Metrics struct {
	// Scheduler
	CallbacksInvoked *prometheus.CounterVec
	CallbackFailures *prometheus.CounterVec
	ScheduledItems   prometheus.Gauge

	// Transport
	ConnectionState   prometheus.Gauge
	ConnectAttempts   *prometheus.CounterVec
	MessagesPublished prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	MessagesReceived  prometheus.Counter

	// Historian
	QueueDepth          prometheus.Gauge
	RecordsPersisted    *prometheus.CounterVec
	RecordsFailed       *prometheus.CounterVec
	RecordsSkipped      *prometheus.CounterVec
	PersistDuration     prometheus.Histogram
	MeasurementsIgnored prometheus.Counter
}

// New creates a new Metrics instance.
func New() *Metrics {
	return &Metrics{
		CallbacksInvoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "callbacks_total",
				Help:      "Total number of due callback invocations",
			},
			[]string{"group"},
		),
		CallbackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "callback_failures_total",
				Help:      "Total number of due callbacks that returned an error or panicked",
			},
			[]string{"group"},
		),
		ScheduledItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "items",
				Help:      "Number of registered scheduled items",
			},
		),
		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connection_state",
				Help:      "Transport state (0=disconnected, 1=connecting, 2=connected, 3=shutting down)",
			},
		),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connect_attempts_total",
				Help:      "Total number of broker connect attempts",
			},
			[]string{"result"},
		),
		MessagesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "published_total",
				Help:      "Total number of messages handed to the broker",
			},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "dropped_total",
				Help:      "Total number of outbound messages dropped",
			},
			[]string{"reason"},
		),
		MessagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "received_total",
				Help:      "Total number of messages received from the broker",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "historian",
				Name:      "queue_depth",
				Help:      "Number of records waiting to be persisted",
			},
		),
		RecordsPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "historian",
				Name:      "persisted_total",
				Help:      "Total number of records written to the store",
			},
			[]string{"kind"},
		),
		RecordsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "historian",
				Name:      "failed_total",
				Help:      "Total number of records dropped after a store error",
			},
			[]string{"kind"},
		),
		RecordsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "historian",
				Name:      "skipped_total",
				Help:      "Total number of records of kinds without a statement",
			},
			[]string{"kind"},
		),
		PersistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "historian",
				Name:      "persist_duration_seconds",
				Help:      "Time spent writing one record",
				Buckets:   prometheus.DefBuckets,
			},
		),
		MeasurementsIgnored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "historian",
				Name:      "ignored_total",
				Help:      "Total number of received messages that could not be decoded",
			},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.CallbacksInvoked, m.CallbackFailures, m.ScheduledItems,
		m.ConnectionState, m.ConnectAttempts, m.MessagesPublished, m.MessagesDropped, m.MessagesReceived,
		m.QueueDepth, m.RecordsPersisted, m.RecordsFailed, m.RecordsSkipped, m.PersistDuration, m.MeasurementsIgnored,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) CallbackInvoked(group string) {
	if m != nil {
		m.CallbacksInvoked.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) CallbackFailed(group string) {
	if m != nil {
		m.CallbackFailures.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) SetScheduledItems(n int) {
	if m != nil {
		m.ScheduledItems.Set(float64(n))
	}
}

func (m *Metrics) SetConnectionState(state int) {
	if m != nil {
		m.ConnectionState.Set(float64(state))
	}
}

func (m *Metrics) ConnectAttempt(result string) {
	if m != nil {
		m.ConnectAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Published() {
	if m != nil {
		m.MessagesPublished.Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.MessagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Received() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) Persisted(kind string, seconds float64) {
	if m != nil {
		m.RecordsPersisted.WithLabelValues(kind).Inc()
		m.PersistDuration.Observe(seconds)
	}
}

func (m *Metrics) PersistFailed(kind string) {
	if m != nil {
		m.RecordsFailed.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PersistSkipped(kind string) {
	if m != nil {
		m.RecordsSkipped.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Ignored() {
	if m != nil {
		m.MeasurementsIgnored.Inc()
	}
}
