package measurement

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is a decoded measurement waiting to be persisted.
type Record struct {
	Kind        Kind
	Measurement Measurement
	ReceivedAt  time.Time
}

// NewRecord wraps m for the ingestion queue.
func NewRecord(m Measurement, receivedAt time.Time) Record {
	return Record{Kind: m.Kind(), Measurement: m, ReceivedAt: receivedAt}
}

// Snapshot is the most recent persisted reading for one subject of a kind.
type Snapshot struct {
	Kind       Kind            `json:"kind"`
	Subject    string          `json:"subject"`
	ObservedAt time.Time       `json:"observedAt"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Body       json.RawMessage `json:"body"`
}

// SnapshotKey is the cache key of a kind/subject pair.
func SnapshotKey(k Kind, subject string) string {
	return string(k) + "/" + subject
}

// NewSnapshot captures r as a Snapshot.
func NewSnapshot(r Record) (Snapshot, error) {
	body, err := json.Marshal(r.Measurement)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to marshal %s measurement: %w", r.Kind, err)
	}
	return Snapshot{
		Kind:       r.Kind,
		Subject:    r.Measurement.Subject(),
		ObservedAt: r.Measurement.ObservedAt(),
		ReceivedAt: r.ReceivedAt,
		Body:       body,
	}, nil
}

// Key returns the cache key of s.
func (s Snapshot) Key() string {
	return SnapshotKey(s.Kind, s.Subject)
}
