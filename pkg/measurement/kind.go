// Package measurement defines the closed set of measurement kinds exchanged
// between sensing agents and the historian, their wire encoding, and the
// named parameters each kind binds into an insert statement.
package measurement

import (
	"fmt"
	"strings"
)

// TopicPrefix is the topic namespace under which measurements travel. The
// last topic level names the kind.
const TopicPrefix = "event/measurement"

// Kind identifies a measurement type. The set is closed; every switch over
// Kind in this module is exhaustive.
type Kind string

const (
	KindCPUTemperature Kind = "cpu-temperature"
	KindHDDTemperature Kind = "hdd-temperature"
	KindHDDUsage       Kind = "hdd-usage"
	KindHeartbeat      Kind = "heartbeat"
	KindLoad           Kind = "load"
	KindPing           Kind = "ping"
	KindTCPPortState   Kind = "tcp-port-state"
	KindUptime         Kind = "uptime"
	KindNSResolve      Kind = "ns-resolve"
	KindDHT22          Kind = "dht22"
	KindState          Kind = "state"
	KindRationalNumber Kind = "rational-number"
	KindUPSBattery     Kind = "ups-battery"
	KindGenericJSON    Kind = "generic-json"
)

// Kinds lists every kind carried on the measurement topic namespace.
// KindGenericJSON is absent: it is routed by configured filters, not by topic.
var Kinds = []Kind{
	KindCPUTemperature,
	KindHDDTemperature,
	KindHDDUsage,
	KindHeartbeat,
	KindLoad,
	KindPing,
	KindTCPPortState,
	KindUptime,
	KindNSResolve,
	KindDHT22,
	KindState,
	KindRationalNumber,
	KindUPSBattery,
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if k == KindGenericJSON {
		return k, nil
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown measurement kind %q", s)
}

// Topic returns the topic a measurement of kind k is published on.
func Topic(k Kind) string {
	return TopicPrefix + "/" + string(k)
}

// Filter is the subscription filter that covers every measurement topic.
func Filter() string {
	return TopicPrefix + "/+"
}

// KindFromTopic returns the kind addressed by an exact measurement topic.
func KindFromTopic(topic string) (Kind, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	k, err := ParseKind(rest)
	if err != nil || k == KindGenericJSON {
		return "", false
	}
	return k, true
}
