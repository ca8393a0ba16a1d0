// Package locker provides mutual exclusion keyed by entity id with a
// bounded wait. A lock that cannot be taken within the wait fails with
// biddingerrors.ErrRetryable instead of blocking.
package locker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"auction-market/internal/biddingerrors"
)

// DefaultWait is used when a Locker is built with a non-positive wait
const DefaultWait = 2 * time.Second

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

type entry struct {
	sem  chan struct{}
	refs int
}

// Locker hands out one lock per key. Entries are dropped once no goroutine
// holds or waits on them, so the map only grows with contention.
type Locker struct {
	scope   string
	wait    time.Duration
	mu      sync.Mutex
	entries map[string]*entry

	// OnTimeout is called with the scope whenever an acquisition times out.
	OnTimeout func(scope string)
}

// New creates a Locker. scope names the entity kind in errors and metrics.
func New(scope string, wait time.Duration) *Locker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Locker{
		scope:   scope,
		wait:    wait,
		entries: make(map[string]*entry),
	}
}

func (l *Locker) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock takes the lock for key, waiting at most the configured duration.
func (l *Locker) Lock(ctx context.Context, key string) (Unlock, error) {
	e := l.acquire(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.release(key, e)
			})
		}, nil
	case <-timer.C:
		l.release(key, e)
		if l.OnTimeout != nil {
			l.OnTimeout(l.scope)
		}
		return nil, fmt.Errorf("lock %s %s: %w", l.scope, key, biddingerrors.ErrRetryable)
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("lock %s %s: %w", l.scope, key, ctx.Err())
	}
}

// LockMany takes the locks for all keys in sorted order, so two callers
// locking overlapping sets cannot deadlock. Duplicate keys are locked once.
func (l *Locker) LockMany(ctx context.Context, keys ...string) (Unlock, error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	unlocks := make([]Unlock, 0, len(sorted))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, key := range sorted {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}

	var once sync.Once
	return func() { once.Do(unlockAll) }, nil
}

// Held returns the number of keys currently locked or waited on
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
