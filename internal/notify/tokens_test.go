package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingSource struct {
	tokens []string
	err    error
	calls  int
}

func (s *countingSource) ListStaffTokens(ctx context.Context, restaurantID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens, nil
}

func TestTokenCacheServesWithinTTL(t *testing.T) {
	src := &countingSource{tokens: []string{"a", "b"}}
	cache := NewTokenCache(src, time.Minute)
	now := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tokens, err := cache.Tokens(context.Background(), "r1")
		if err != nil || len(tokens) != 2 {
			t.Fatalf("unexpected tokens %v err=%v", tokens, err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source read, got %d", src.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.Tokens(context.Background(), "r1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d reads", src.calls)
	}

	cache.Invalidate("r1")
	_, _ = cache.Tokens(context.Background(), "r1")
	if src.calls != 3 {
		t.Fatalf("expected read after invalidate, got %d", src.calls)
	}
}

func TestTokenCacheServesStaleOnSourceError(t *testing.T) {
	src := &countingSource{tokens: []string{"a"}}
	cache := NewTokenCache(src, time.Minute)
	now := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if _, err := cache.Tokens(context.Background(), "r1"); err != nil {
		t.Fatalf("prime: %v", err)
	}
	src.err = errors.New("db down")
	now = now.Add(time.Hour)
	tokens, err := cache.Tokens(context.Background(), "r1")
	if err != nil || len(tokens) != 1 {
		t.Fatalf("expected stale tokens, got %v err=%v", tokens, err)
	}

	if _, err := cache.Tokens(context.Background(), "unknown"); err == nil {
		t.Fatal("expected error with nothing cached")
	}
}
