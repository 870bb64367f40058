// Package events holds the event types exchanged over the in-process bus
// between the transport supervisor, the sensors and the historian.
package events

import (
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// ConnectionEstablished is published after every successful broker connect.
type ConnectionEstablished struct {
	SessionPresent bool
}

// ConnectionLost is published when an established connection drops.
type ConnectionLost struct {
	Err error
}

// ConnectingFailed is published when a connect attempt fails.
type ConnectingFailed struct {
	Err error
}

// ConnectRequest asks the supervisor to attempt a connect.
type ConnectRequest struct{}

// ReconnectRequest asks the supervisor to connect again after its backoff.
type ReconnectRequest struct{}

// ShutdownRequested moves the supervisor into its terminal state.
type ShutdownRequested struct{}

// PublishRequest publishes a raw payload.
type PublishRequest struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload []byte
}

// PublishJSONRequest publishes Value encoded as JSON.
type PublishJSONRequest struct {
	Topic  string
	QoS    byte
	Retain bool
	Value  any
}

// SubscribeRequest subscribes to a topic filter.
type SubscribeRequest struct {
	Filter string
	QoS    byte
}

// PublishReceived carries a message delivered by the broker.
type PublishReceived struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// OutboundMeasurement is a locally produced measurement to be published on
// its kind's topic.
type OutboundMeasurement struct {
	Item measurement.Measurement
}

// InboundMeasurement is a measurement decoded from the transport.
type InboundMeasurement struct {
	Item measurement.Measurement
}

// SensorReading is a plain-text value published under the sensor topic
// prefix, e.g. Sensor "load" or "cpu/core0/temperature/celsius".
type SensorReading struct {
	Sensor string
	Value  string
}
