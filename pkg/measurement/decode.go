package measurement

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTopic is returned by Decode for topics outside the measurement
// namespace or naming an unknown kind.
var ErrUnknownTopic = errors.New("not a measurement topic")

// New returns a zero value of the concrete type for kind k.
func New(k Kind) (Measurement, error) {
	switch k {
	case KindCPUTemperature:
		return &CPUTemperature{}, nil
	case KindHDDTemperature:
		return &HDDTemperature{}, nil
	case KindHDDUsage:
		return &HDDUsage{}, nil
	case KindHeartbeat:
		return &Heartbeat{}, nil
	case KindLoad:
		return &Load{}, nil
	case KindPing:
		return &Ping{}, nil
	case KindTCPPortState:
		return &TCPPortState{}, nil
	case KindUptime:
		return &Uptime{}, nil
	case KindNSResolve:
		return &NSResolve{}, nil
	case KindDHT22:
		return &DHT22{}, nil
	case KindState:
		return &State{}, nil
	case KindRationalNumber:
		return &RationalNumber{}, nil
	case KindUPSBattery:
		return &UPSBattery{}, nil
	case KindGenericJSON:
		return &GenericJSON{}, nil
	}
	return nil, fmt.Errorf("unknown measurement kind %q", k)
}

// Decode turns a payload received on topic into a Measurement. The kind is
// taken from the last topic level. Topics that are not exact measurement
// topics yield ErrUnknownTopic.
func Decode(topic string, payload []byte) (Measurement, error) {
	k, ok := KindFromTopic(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	m, err := New(k)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("failed to decode %s measurement: %w", k, err)
	}
	return m, nil
}

// DecodeGeneric wraps a raw payload received on a generic route. The payload
// must be valid JSON.
func DecodeGeneric(topic, statement string, payload []byte, receivedAt time.Time) (*GenericJSON, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload on %s is not valid JSON", topic)
	}
	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)
	return &GenericJSON{
		Timestamp: receivedAt,
		Topic:     topic,
		Statement: statement,
		Payload:   raw,
	}, nil
}
