package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
)

func TestMemoryStoreConditionalInsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := sampleBooking()

	first, err := s.InsertConfirmedIfFree(ctx, b)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	overlap := b
	overlap.Window = bookings.Window{Start: b.Window.Start.Add(time.Hour), End: b.Window.End.Add(time.Hour)}
	if _, err := s.InsertConfirmedIfFree(ctx, overlap); !errors.Is(err, bookings.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	adjacent := b
	adjacent.Window = bookings.Window{Start: b.Window.End, End: b.Window.End.Add(time.Hour)}
	if _, err := s.InsertConfirmedIfFree(ctx, adjacent); err != nil {
		t.Fatalf("back-to-back booking should succeed: %v", err)
	}

	if err := s.SetStatus(ctx, first.ID, bookings.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.InsertConfirmedIfFree(ctx, overlap); err != nil {
		t.Fatalf("cancelled booking should free the slot: %v", err)
	}
}

func TestMemoryStoreMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

	if _, err := s.AppendMessage(ctx, chatlog.Message{RestaurantID: "r", CustomerID: "c", Sender: chatlog.SenderCustomer, Body: "hi", ExternalID: "w1", Timestamp: ts}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.AppendMessage(ctx, chatlog.Message{RestaurantID: "r", CustomerID: "c", Sender: chatlog.SenderCustomer, Body: "hi", ExternalID: "w1"}); !errors.Is(err, chatlog.ErrDuplicateMessage) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := s.AppendMessage(ctx, chatlog.Message{RestaurantID: "r", CustomerID: "c", Sender: chatlog.SenderStaff, Body: "hi", Timestamp: ts.Add(time.Minute)}); err != nil {
		t.Fatalf("append staff: %v", err)
	}

	ok, err := s.HasExternalID(ctx, "r", "c", "w1")
	if err != nil || !ok {
		t.Fatalf("expected external id present, got %v %v", ok, err)
	}
	at, found, err := s.LatestTextMatch(ctx, "r", "c", "hi")
	if err != nil || !found || !at.Equal(ts) {
		t.Fatalf("expected customer-only match at %s, got %s found=%v err=%v", ts, at, found, err)
	}
	msgs, _ := s.ListRecentMessages(ctx, "r", "c", 1)
	if len(msgs) != 1 || msgs[0].Sender != chatlog.SenderStaff {
		t.Fatalf("expected latest staff message, got %+v", msgs)
	}
}

func TestMemoryStoreUpsertCustomerKeepsName(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, _ := s.UpsertCustomer(ctx, "6012", "")
	if c.Name != "" {
		t.Fatalf("expected empty name")
	}
	c2, _ := s.UpsertCustomer(ctx, "6012", "Aina")
	c3, _ := s.UpsertCustomer(ctx, "6012", "Other")
	if c2.ID != c.ID || c3.Name != "Aina" {
		t.Fatalf("unexpected customers %+v %+v", c2, c3)
	}
}

func TestMemoryStoreReservationsExcludeEndedBookings(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	past := sampleBooking()
	past.Window = bookings.Window{Start: now.Add(-3 * time.Hour), End: now.Add(-time.Hour)}
	if _, err := s.InsertConfirmedIfFree(ctx, past); err != nil {
		t.Fatalf("insert past: %v", err)
	}
	upcoming := sampleBooking()
	upcoming.Window = bookings.Window{Start: now.Add(time.Hour), End: now.Add(3 * time.Hour)}
	created, err := s.InsertConfirmedIfFree(ctx, upcoming)
	if err != nil {
		t.Fatalf("insert upcoming: %v", err)
	}

	res, _ := s.ListConfirmedReservations(ctx, testRestaurant)
	if len(res) != 1 || res[0].BookingID != created.ID {
		t.Fatalf("expected only the upcoming booking, got %+v", res)
	}
}
