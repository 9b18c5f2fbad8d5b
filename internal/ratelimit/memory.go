package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps per-customer fixed windows in process memory. Idle
// customers are evicted by Run and, between ticks, lazily from Allow once a
// sweep interval has passed.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	policy    Policy
	sweep     time.Duration
	lastSweep time.Time
}

// NewMemoryLimiter creates an in-process fixed-window limiter.
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	policy = policy.normalized()
	sweep := 5 * time.Minute
	if policy.Window > sweep {
		sweep = policy.Window
	}
	return &MemoryLimiter{
		windows: make(map[string]*window),
		policy:  policy,
		sweep:   sweep,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, customerID string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSweep.IsZero() {
		l.lastSweep = now
	} else if now.Sub(l.lastSweep) >= l.sweep {
		l.sweepLocked(now)
	}

	w, ok := l.windows[customerID]
	if !ok || now.Sub(w.start) >= l.policy.Window {
		l.windows[customerID] = &window{start: now, count: 1}
		return true, nil
	}
	if w.count >= l.policy.Max {
		return false, nil
	}
	w.count++
	return true, nil
}

// Sweep evicts windows that expired at least one full window before now and
// returns how many were removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

func (l *MemoryLimiter) sweepLocked(now time.Time) int {
	l.lastSweep = now
	cutoff := now.Add(-2 * l.policy.Window)
	removed := 0
	for id, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked customers.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps periodically until ctx is cancelled.
func (l *MemoryLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}
