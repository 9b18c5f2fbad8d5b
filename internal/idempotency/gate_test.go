package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

type stubLookup struct {
	ids      map[string]bool
	textAt   time.Time
	textHit  bool
	idErr    error
	textErr  error
	textCall int
}

func (s *stubLookup) HasExternalID(_ context.Context, _, _, id string) (bool, error) {
	if s.idErr != nil {
		return false, s.idErr
	}
	return s.ids[id], nil
}

func (s *stubLookup) LatestTextMatch(context.Context, string, string, string) (time.Time, bool, error) {
	s.textCall++
	if s.textErr != nil {
		return time.Time{}, false, s.textErr
	}
	return s.textAt, s.textHit, nil
}

func TestGateCheck(t *testing.T) {
	now := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		lookup *stubLookup
		probe  Probe
		want   Verdict
	}{
		{
			name:   "seen external id",
			lookup: &stubLookup{ids: map[string]bool{"wamid.1": true}},
			probe:  Probe{ExternalID: "wamid.1", Text: "hi", Now: now},
			want:   Duplicate,
		},
		{
			name:   "same text inside window",
			lookup: &stubLookup{textAt: now.Add(-4 * time.Second), textHit: true},
			probe:  Probe{ExternalID: "wamid.2", Text: "yes", Now: now},
			want:   Duplicate,
		},
		{
			name:   "same text outside window",
			lookup: &stubLookup{textAt: now.Add(-30 * time.Second), textHit: true},
			probe:  Probe{ExternalID: "wamid.3", Text: "yes", Now: now},
			want:   Fresh,
		},
		{
			name:   "new message",
			lookup: &stubLookup{},
			probe:  Probe{ExternalID: "wamid.4", Text: "book a table", Now: now},
			want:   Fresh,
		},
		{
			name:   "lookup failure fails open",
			lookup: &stubLookup{idErr: errors.New("db down"), textErr: errors.New("db down")},
			probe:  Probe{ExternalID: "wamid.5", Text: "hi", Now: now},
			want:   Fresh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.lookup, 10*time.Second, logging.Discard())
			if got := gate.Check(context.Background(), tt.probe); got != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestGateSkipsTextDetectorForMedia(t *testing.T) {
	lookup := &stubLookup{textHit: true, textAt: time.Now()}
	gate := NewGate(lookup, 10*time.Second, logging.Discard())
	if got := gate.Check(context.Background(), Probe{ExternalID: "wamid.9"}); got != Fresh {
		t.Fatalf("expected fresh, got %s", got)
	}
	if lookup.textCall != 0 {
		t.Fatalf("text detector should not run without text")
	}
}
