package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiterRejectsAfterMax(t *testing.T) {
	l := NewMemoryLimiter(Policy{Max: 3, Window: time.Minute})
	now := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow(ctx, "cust", now.Add(time.Duration(i)*time.Second))
		if !ok {
			t.Fatalf("event %d should be allowed", i+1)
		}
	}
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx, "cust", now.Add(30*time.Second)); ok {
			t.Fatalf("event beyond budget should be rejected")
		}
	}
	if ok, _ := l.Allow(ctx, "other", now); !ok {
		t.Fatalf("other customers have their own budget")
	}
	if ok, _ := l.Allow(ctx, "cust", now.Add(time.Minute)); !ok {
		t.Fatalf("expired window should reset")
	}
}

func TestMemoryLimiterSweepEvictsIdleCustomers(t *testing.T) {
	l := NewMemoryLimiter(Policy{Max: 3, Window: time.Minute})
	now := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	_, _ = l.Allow(context.Background(), "idle", now)
	_, _ = l.Allow(context.Background(), "active", now.Add(4*time.Minute))

	if removed := l.Sweep(now.Add(4*time.Minute + time.Second)); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 tracked customer, got %d", l.Len())
	}
}

func TestMemoryLimiterConcurrentSameCustomer(t *testing.T) {
	l := NewMemoryLimiter(Policy{Max: 3, Window: time.Minute})
	now := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(context.Background(), "cust", now); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 3 {
		t.Fatalf("expected exactly 3 admitted events, got %d", allowed)
	}
}

func TestMemoryLimiterAllowEvictsIdleCustomersLazily(t *testing.T) {
	l := NewMemoryLimiter(Policy{Max: 3, Window: time.Minute})
	now := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, _ = l.Allow(ctx, fmt.Sprintf("cust-%d", i), now)
	}
	if l.Len() != 20 {
		t.Fatalf("expected 20 tracked customers, got %d", l.Len())
	}

	// Within the sweep interval nothing is evicted.
	_, _ = l.Allow(ctx, "late", now.Add(4*time.Minute))
	if l.Len() != 21 {
		t.Fatalf("expected 21 tracked customers, got %d", l.Len())
	}

	_, _ = l.Allow(ctx, "later", now.Add(5*time.Minute))
	if l.Len() != 2 {
		t.Fatalf("expected only recent customers to remain, got %d", l.Len())
	}
}

func TestMemoryLimiterRunStopsOnCancel(t *testing.T) {
	l := NewMemoryLimiter(Policy{Max: 3, Window: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
