package historian_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/historian"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateRecord(metric string) measurement.Record {
	now := time.Now()
	return measurement.NewRecord(&measurement.State{Timestamp: now, Metric: metric}, now)
}

func TestQueue_FIFO(t *testing.T) {
	q := historian.NewQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok, "empty queue yields nothing")

	q.Enqueue(stateRecord("a"))
	q.Enqueue(stateRecord("b"))
	assert.Equal(t, 2, q.Len())

	first, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", first.Measurement.Subject())

	q.Enqueue(stateRecord("c"))
	second, _ := q.TryDequeue()
	third, _ := q.TryDequeue()
	assert.Equal(t, "b", second.Measurement.Subject())
	assert.Equal(t, "c", third.Measurement.Subject())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	// Arrange
	const producers, perProducer = 8, 250
	q := historian.NewQueue()

	// Act
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(stateRecord(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}

	seen := make(map[string]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	consume := func() {
		for {
			rec, ok := q.TryDequeue()
			if !ok {
				return
			}
			seen[rec.Measurement.Subject()]++
		}
	}
loop:
	for {
		select {
		case <-done:
			consume()
			break loop
		default:
			consume()
		}
	}

	// Assert
	assert.Len(t, seen, producers*perProducer)
	for subject, n := range seen {
		assert.Equal(t, 1, n, "record %s dequeued more than once", subject)
	}
}
