package historian

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/illmade-knight/go-hostwatch/pkg/store"
	"github.com/rs/zerolog"
)

// Drain persists queued records. Each record is attempted exactly once;
// failures are logged and the record is dropped.
type Drain struct {
	queue    *Queue
	executor store.Executor
	opts     options
	logger   zerolog.Logger
}

// NewDrain creates a Drain reading from queue and writing with executor.
func NewDrain(queue *Queue, executor store.Executor, logger zerolog.Logger, opts ...Option) (*Drain, error) {
	if queue == nil {
		return nil, errors.New("historian: queue cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("historian: executor cannot be nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Drain{
		queue:    queue,
		executor: executor,
		opts:     o,
		logger:   logger.With().Str("component", "Drain").Logger(),
	}, nil
}

// Run drains the queue, sleeps for the interval and repeats until ctx is
// cancelled. Records still queued at cancellation are not persisted.
func (d *Drain) Run(ctx context.Context) {
	d.logger.Info().Dur("interval", d.opts.interval).Msg("Starting drain loop...")
	defer d.logger.Info().Int("abandoned", d.queue.Len()).Msg("Drain loop stopped.")

	for {
		if ctx.Err() != nil {
			return
		}
		d.DrainOnce(ctx)

		timer := d.opts.clock.NewTimer(d.opts.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// DrainOnce persists records until the queue is empty or ctx is cancelled,
// and returns how many records were taken from the queue.
func (d *Drain) DrainOnce(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		rec, ok := d.queue.TryDequeue()
		if !ok {
			break
		}
		n++
		d.persist(ctx, rec)
	}
	d.opts.metrics.SetQueueDepth(d.queue.Len())
	return n
}

func (d *Drain) persist(ctx context.Context, rec measurement.Record) {
	kind := string(rec.Kind)
	defer func() {
		if r := recover(); r != nil {
			d.opts.metrics.PersistFailed(kind)
			d.logger.Error().Str("kind", kind).Interface("panic", r).Msg("Persisting record panicked.")
		}
	}()

	start := d.opts.clock.Now()
	err := d.executor.Insert(ctx, rec)
	switch {
	case errors.Is(err, store.ErrNoStatement):
		d.opts.metrics.PersistSkipped(kind)
		d.logger.Debug().Str("kind", kind).Msg("No statement configured, record skipped.")
		return
	case err != nil:
		d.opts.metrics.PersistFailed(kind)
		d.logger.Error().Err(err).Str("kind", kind).Str("subject", rec.Measurement.Subject()).Msg("Failed to persist record.")
		return
	}
	d.opts.metrics.Persisted(kind, d.opts.clock.Since(start).Seconds())

	if d.opts.latest != nil {
		if err := d.updateLatest(ctx, rec); err != nil {
			d.logger.Warn().Err(err).Str("kind", kind).Msg("Failed to update latest value cache.")
		}
	}
}

func (d *Drain) updateLatest(ctx context.Context, rec measurement.Record) error {
	snap, err := measurement.NewSnapshot(rec)
	if err != nil {
		return err
	}
	if err := d.opts.latest.Set(ctx, snap); err != nil {
		return fmt.Errorf("failed to cache %s: %w", snap.Key(), err)
	}
	return nil
}
