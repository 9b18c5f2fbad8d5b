package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, Policy{Max: 3, Window: time.Minute}), mr
}

func TestRedisLimiterWindow(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "cust", now)
		if err != nil || !ok {
			t.Fatalf("event %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := l.Allow(ctx, "cust", now)
	if err != nil || ok {
		t.Fatalf("4th event should be rejected, ok=%v err=%v", ok, err)
	}
	if n, _ := l.Count(ctx, "cust"); n != 3 {
		t.Fatalf("rejected events must not consume budget, count=%d", n)
	}

	mr.FastForward(time.Minute)
	if ok, err := l.Allow(ctx, "cust", now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("expected reset after window, ok=%v err=%v", ok, err)
	}
}

func TestRedisLimiterFailsOpenWhenWrapped(t *testing.T) {
	l, mr := newRedisLimiter(t)
	mr.Close()

	if _, err := l.Allow(context.Background(), "cust", time.Now()); err == nil {
		t.Fatalf("expected backend error")
	}
	wrapped := NewFailOpen(l, logging.Discard())
	ok, err := wrapped.Allow(context.Background(), "cust", time.Now())
	if err != nil || !ok {
		t.Fatalf("fail-open should allow, ok=%v err=%v", ok, err)
	}
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("boom")
}

func TestFailOpen(t *testing.T) {
	ok, err := NewFailOpen(errLimiter{}, logging.Discard()).Allow(context.Background(), "c", time.Now())
	if !ok || err != nil {
		t.Fatalf("expected allow, got %v %v", ok, err)
	}
}
