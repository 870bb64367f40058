// Package scheduler drives periodic producers at their individual scan rates.
//
// Items are registered with a scan rate and a DueFunc. Items may share a
// DueFunc; a shared function is invoked once per tick with every one of its
// items that is due. The loop only runs producers while the transport gate
// reports connectivity, and between ticks it sleeps exactly until the next
// item becomes due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultIdleDelay is the sleep used while disconnected or when nothing is
// registered.
const DefaultIdleDelay = time.Second

// Handle addresses a registered item. Handles are stable for the lifetime of
// the Scheduler. The zero Handle is never issued.
type Handle uint64

// Item describes one scheduled unit of work.
type Item struct {
	// Key identifies the item. Registering an existing key updates it in place.
	Key      string
	ScanRate time.Duration
}

// DueFunc is invoked with the handles of its items that are due. It owns
// resetting those handles through ResetDue, whether or not it processed each
// of them.
type DueFunc func(ctx context.Context, due []Handle) error

// ConnectivityGate reports whether producers may run.
type ConnectivityGate interface {
	IsConnected() bool
}

type group struct {
	name string
	fn   DueFunc
}

type entry struct {
	item      Item
	lastFired time.Time
	group     *group
}

// Scheduler is the scan-rate scheduler. The zero value is not usable; use New.
type Scheduler struct {
	mu      sync.RWMutex
	entries []*entry
	byKey   map[string]Handle

	gate      ConnectivityGate
	clock     clockwork.Clock
	idleDelay time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, typically with a fake clock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithIdleDelay overrides DefaultIdleDelay.
func WithIdleDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleDelay = d
		}
	}
}

// WithMetrics records callback invocations and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a Scheduler gated on gate. A nil gate is always connected.
func New(gate ConnectivityGate, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		byKey:     make(map[string]Handle),
		gate:      gate,
		clock:     clockwork.NewRealClock(),
		idleDelay: DefaultIdleDelay,
		logger:    logger.With().Str("component", "Scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register registers a single item with its own DueFunc.
func (s *Scheduler) Register(item Item, fn DueFunc) (Handle, error) {
	handles, err := s.RegisterGroup([]Item{item}, fn)
	if err != nil {
		return 0, err
	}
	return handles[0], nil
}

// RegisterGroup registers items that share fn. Keys must be unique within
// items. Registration is idempotent by key across calls: an existing key
// keeps its handle and takes the new scan rate and function. Every registered item starts with lastFired set to now.
func (s *Scheduler) RegisterGroup(items []Item, fn DueFunc) ([]Handle, error) {
	if fn == nil {
		return nil, errors.New("scheduler: due function cannot be nil")
	}
	if len(items) == 0 {
		return nil, errors.New("scheduler: at least one item is required")
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Key == "" {
			return nil, errors.New("scheduler: item key cannot be empty")
		}
		if _, dup := seen[item.Key]; dup {
			return nil, fmt.Errorf("scheduler: duplicate item key %q in group", item.Key)
		}
		seen[item.Key] = struct{}{}
		if item.ScanRate <= 0 {
			return nil, fmt.Errorf("scheduler: item %q has non-positive scan rate %s", item.Key, item.ScanRate)
		}
	}

	g := &group{name: items[0].Key, fn: fn}
	now := s.clock.Now()
	handles := make([]Handle, 0, len(items))

	s.mu.Lock()
	for _, item := range items {
		if h, ok := s.byKey[item.Key]; ok {
			e := s.entries[h-1]
			e.item = item
			e.group = g
			e.lastFired = now
			handles = append(handles, h)
			continue
		}
		s.entries = append(s.entries, &entry{item: item, lastFired: now, group: g})
		h := Handle(len(s.entries))
		s.byKey[item.Key] = h
		handles = append(handles, h)
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.metrics.SetScheduledItems(count)
	s.logger.Debug().Str("group", g.name).Int("items", len(items)).Msg("Registered scheduled items.")
	return handles, nil
}

// IsDue reports whether the item's scan rate has elapsed since it last
// fired. It panics if h was never issued by this Scheduler.
func (s *Scheduler) IsDue(h Handle) bool {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lookup(h)
	return now.Sub(e.lastFired) >= e.item.ScanRate
}

// ResetDue marks the items as fired now. It panics if any handle was never
// issued by this Scheduler.
func (s *Scheduler) ResetDue(handles ...Handle) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range handles {
		s.lookup(h).lastFired = now
	}
}

// Item returns the registered item behind h. It panics on an unknown handle.
func (s *Scheduler) Item(h Handle) Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(h).item
}

// NextDelay returns the smallest remaining time until any item becomes due.
// The result may be zero or negative when an item is already due. ok is
// false when nothing is registered.
func (s *Scheduler) NextDelay() (delay time.Duration, ok bool) {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, e := range s.entries {
		remaining := e.item.ScanRate - now.Sub(e.lastFired)
		if i == 0 || remaining < delay {
			delay = remaining
		}
	}
	return delay, len(s.entries) > 0
}

// lookup must be called with mu held.
func (s *Scheduler) lookup(h Handle) *entry {
	if h == 0 || int(h) > len(s.entries) {
		panic(fmt.Sprintf("scheduler: handle %d is not registered", h))
	}
	return s.entries[h-1]
}

type batch struct {
	group *group
	due   []Handle
}

// collectDue groups the due handles by their DueFunc, in registration order.
func (s *Scheduler) collectDue() []batch {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var batches []batch
	index := make(map[*group]int)
	for i, e := range s.entries {
		if now.Sub(e.lastFired) < e.item.ScanRate {
			continue
		}
		pos, ok := index[e.group]
		if !ok {
			pos = len(batches)
			index[e.group] = pos
			batches = append(batches, batch{group: e.group})
		}
		batches[pos].due = append(batches[pos].due, Handle(i+1))
	}
	return batches
}

// Run executes the scheduling loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Msg("Starting scheduler loop...")
	defer s.logger.Info().Msg("Scheduler loop stopped.")

	for {
		if ctx.Err() != nil {
			return
		}

		if s.gate != nil && !s.gate.IsConnected() {
			if !s.sleep(ctx, s.idleDelay) {
				return
			}
			continue
		}

		if batches := s.collectDue(); len(batches) > 0 {
			s.dispatch(ctx, batches)
		}

		delay, ok := s.NextDelay()
		if !ok {
			delay = s.idleDelay
		}
		if delay <= 0 {
			continue
		}
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// dispatch runs one goroutine per distinct DueFunc and waits for all of them.
func (s *Scheduler) dispatch(ctx context.Context, batches []batch) {
	var wg sync.WaitGroup
	wg.Add(len(batches))
	for _, b := range batches {
		go func(b batch) {
			defer wg.Done()
			s.invoke(ctx, b)
		}(b)
	}
	wg.Wait()
}

func (s *Scheduler) invoke(ctx context.Context, b batch) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.CallbackFailed(b.group.name)
			s.logger.Error().Str("group", b.group.name).Interface("panic", r).Msg("Due callback panicked.")
		}
	}()

	s.metrics.CallbackInvoked(b.group.name)
	if err := b.group.fn(ctx, b.due); err != nil {
		s.metrics.CallbackFailed(b.group.name)
		s.logger.Error().Err(err).Str("group", b.group.name).Int("due", len(b.due)).Msg("Due callback failed.")
	}
}

// sleep waits for d or cancellation and reports whether the full duration
// elapsed.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}
