// Package cache keeps the most recent persisted snapshot of every
// kind/subject pair so the HTTP surface can serve current values without
// querying the store.
package cache

import (
	"context"
	"errors"
	"io"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// ErrNotFound is returned by Fetch when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotCache stores snapshots under measurement.SnapshotKey. Entries are
// overwritten by newer readings and never expire unless the backend applies
// a TTL.
type SnapshotCache interface {
	// Set stores s under s.Key().
	Set(ctx context.Context, s measurement.Snapshot) error
	// Fetch returns the snapshot stored under key.
	Fetch(ctx context.Context, key string) (measurement.Snapshot, error)
	// List returns every snapshot of kind.
	List(ctx context.Context, kind measurement.Kind) ([]measurement.Snapshot, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	io.Closer
}
