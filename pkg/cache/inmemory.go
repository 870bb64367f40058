package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// InMemorySnapshotCache is a thread-safe, in-process SnapshotCache.
type InMemorySnapshotCache struct {
	mu   sync.RWMutex
	data map[string]measurement.Snapshot
}

// NewInMemorySnapshotCache creates an empty cache.
func NewInMemorySnapshotCache() *InMemorySnapshotCache {
	return &InMemorySnapshotCache{
		data: make(map[string]measurement.Snapshot),
	}
}

// Set stores s, keeping an existing entry if it was observed later.
func (c *InMemorySnapshotCache) Set(_ context.Context, s measurement.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := s.Key()
	if cur, ok := c.data[key]; ok && cur.ObservedAt.After(s.ObservedAt) {
		return nil
	}
	c.data[key] = s
	return nil
}

// Fetch retrieves a snapshot by key.
func (c *InMemorySnapshotCache) Fetch(_ context.Context, key string) (measurement.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.data[key]
	if !ok {
		return measurement.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s, nil
}

// List returns the snapshots of kind ordered by subject.
func (c *InMemorySnapshotCache) List(_ context.Context, kind measurement.Kind) ([]measurement.Snapshot, error) {
	c.mu.RLock()
	out := make([]measurement.Snapshot, 0)
	for _, s := range c.data {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// Delete removes a key.
func (c *InMemorySnapshotCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Close is a no-op for the in-memory implementation.
func (c *InMemorySnapshotCache) Close() error {
	return nil
}
