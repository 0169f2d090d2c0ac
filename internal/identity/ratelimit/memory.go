package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count    int
	windowAt time.Time
}

// MemoryLimiter is a fixed-window failure counter held in process memory.
// Sufficient for single-instance deployments; multi-instance deployments
// should prefer the redis limiter so the budget is shared.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		entries:     make(map[string]*memoryEntry),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *MemoryLimiter) Check(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil || l.expired(e) {
		return nil
	}
	if e.count >= l.maxAttempts {
		return ErrLimited
	}
	return nil
}

func (l *MemoryLimiter) RecordFailure(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil || l.expired(e) {
		e = &memoryEntry{windowAt: l.now()}
		l.entries[key] = e
	}
	e.count++

	if e.count >= l.maxAttempts {
		return ErrLimited
	}
	return nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)

	// Opportunistically drop stale windows so the map doesn't grow with
	// one entry per principal forever.
	for k, e := range l.entries {
		if l.expired(e) {
			delete(l.entries, k)
		}
	}
	return nil
}

func (l *MemoryLimiter) expired(e *memoryEntry) bool {
	return l.now().Sub(e.windowAt) >= l.window
}
