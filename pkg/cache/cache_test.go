package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/cache"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(kind measurement.Kind, subject string, observed time.Time, body string) measurement.Snapshot {
	return measurement.Snapshot{
		Kind:       kind,
		Subject:    subject,
		ObservedAt: observed,
		ReceivedAt: observed.Add(time.Second),
		Body:       json.RawMessage(body),
	}
}

// exerciseSnapshotCache runs the behaviour every backend shares.
func exerciseSnapshotCache(t *testing.T, c cache.SnapshotCache) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("set and fetch", func(t *testing.T) {
		s := snapshot(measurement.KindLoad, "h1", now, `{"LastOneMinute":0.5}`)
		require.NoError(t, c.Set(ctx, s))

		got, err := c.Fetch(ctx, "load/h1")
		require.NoError(t, err)
		assert.Equal(t, s.Subject, got.Subject)
		assert.Equal(t, s.Kind, got.Kind)
		assert.True(t, s.ObservedAt.Equal(got.ObservedAt))
		assert.JSONEq(t, string(s.Body), string(got.Body))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := c.Fetch(ctx, "load/nobody")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("list by kind", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, snapshot(measurement.KindPing, "h2/dns", now, `{}`)))
		require.NoError(t, c.Set(ctx, snapshot(measurement.KindPing, "h1/gw", now, `{}`)))
		require.NoError(t, c.Set(ctx, snapshot(measurement.KindLoad, "h2", now, `{}`)))

		got, err := c.List(ctx, measurement.KindPing)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "h1/gw", got[0].Subject)
		assert.Equal(t, "h2/dns", got[1].Subject)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "load/h1"))
		_, err := c.Fetch(ctx, "load/h1")
		assert.ErrorIs(t, err, cache.ErrNotFound)
		assert.NoError(t, c.Delete(ctx, "load/h1"))
	})
}

func TestInMemorySnapshotCache(t *testing.T) {
	c := cache.NewInMemorySnapshotCache()
	t.Cleanup(func() { _ = c.Close() })
	exerciseSnapshotCache(t, c)
}

func TestInMemorySnapshotCache_KeepsNewest(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := cache.NewInMemorySnapshotCache()
	now := time.Now()

	// Act
	require.NoError(t, c.Set(ctx, snapshot(measurement.KindLoad, "h1", now, `{"v":2}`)))
	require.NoError(t, c.Set(ctx, snapshot(measurement.KindLoad, "h1", now.Add(-time.Minute), `{"v":1}`)))

	// Assert
	got, err := c.Fetch(ctx, "load/h1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Body))
}
