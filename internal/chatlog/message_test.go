package chatlog

import (
	"testing"
	"time"
)

func TestRecentSortsAndBounds(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var msgs []Message
	for i := 14; i >= 0; i-- {
		msgs = append(msgs, Message{ID: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Minute), Seq: int64(i)})
	}

	recent := Recent(msgs, 10)
	if len(recent) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(recent))
	}
	if recent[0].Seq != 5 || recent[9].Seq != 14 {
		t.Fatalf("expected seq 5..14, got %d..%d", recent[0].Seq, recent[9].Seq)
	}
	if msgs[0].Seq != 14 {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestSortChronologicalBreaksTiesByInsertion(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "second", Timestamp: ts, Seq: 2},
		{ID: "first", Timestamp: ts, Seq: 1},
		{ID: "earliest", Timestamp: ts.Add(-time.Second), Seq: 3},
	}
	SortChronological(msgs)
	got := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	want := []string{"earliest", "first", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestMediaBody(t *testing.T) {
	if got := MediaBody("media/abc.jpg", "  my receipt "); got != "media:media/abc.jpg my receipt" {
		t.Fatalf("unexpected media body %q", got)
	}
	msg := Message{Body: MediaBody("k", "")}
	if !msg.IsMedia() {
		t.Fatalf("expected media message")
	}
	if (Message{Body: "hello"}).IsMedia() {
		t.Fatalf("plain text should not be media")
	}
}
