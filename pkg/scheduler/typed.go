package scheduler

import (
	"context"
	"sync"
	"time"
)

// Scannable is a configuration item that can be scheduled.
type Scannable interface {
	ScanKey() string
	ScanInterval() time.Duration
}

// RegisterItems registers items sharing fn. fn receives the due items as
// their own type; every item it is given is reset after fn returns, whether
// it succeeded, failed or panicked.
func RegisterItems[T Scannable](s *Scheduler, items []T, fn func(ctx context.Context, due []T) error) ([]Handle, error) {
	var (
		mu       sync.RWMutex
		byHandle = make(map[Handle]T, len(items))
	)

	raw := make([]Item, len(items))
	for i, item := range items {
		raw[i] = Item{Key: item.ScanKey(), ScanRate: item.ScanInterval()}
	}

	// Handles are only known after registration; hold the lock so an early
	// tick waits for the mapping.
	mu.Lock()
	defer mu.Unlock()

	handles, err := s.RegisterGroup(raw, func(ctx context.Context, due []Handle) error {
		defer s.ResetDue(due...)

		mu.RLock()
		typed := make([]T, 0, len(due))
		for _, h := range due {
			if item, ok := byHandle[h]; ok {
				typed = append(typed, item)
			}
		}
		mu.RUnlock()

		return fn(ctx, typed)
	})
	if err != nil {
		return nil, err
	}
	for i, h := range handles {
		byHandle[h] = items[i]
	}
	return handles, nil
}

// RegisterItem registers a single item with its own typed callback.
func RegisterItem[T Scannable](s *Scheduler, item T, fn func(ctx context.Context, item T) error) (Handle, error) {
	handles, err := RegisterItems(s, []T{item}, func(ctx context.Context, due []T) error {
		for _, d := range due {
			if err := fn(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return handles[0], nil
}
