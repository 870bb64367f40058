package historian

import (
	"sync"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
)

// Queue is an unbounded multi-producer FIFO of records awaiting persistence.
type Queue struct {
	mu    sync.Mutex
	items []measurement.Record
	head  int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends rec. It never blocks on the consumer.
func (q *Queue) Enqueue(rec measurement.Record) {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()
}

// TryDequeue removes and returns the oldest record, if any.
func (q *Queue) TryDequeue() (measurement.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return measurement.Record{}, false
	}
	rec := q.items[q.head]
	q.items[q.head] = measurement.Record{}
	q.head++
	// Reuse the backing array once the consumer has caught up.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return rec, true
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
