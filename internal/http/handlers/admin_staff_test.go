package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/internal/store"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

type stubDispatcher struct {
	replies []pipeline.Reply
	err     error
}

func (d *stubDispatcher) Dispatch(_ context.Context, r pipeline.Reply) error {
	d.replies = append(d.replies, r)
	return d.err
}

type stubInvalidator struct {
	invalidated []string
}

func (s *stubInvalidator) Invalidate(restaurantID string) {
	s.invalidated = append(s.invalidated, restaurantID)
}

func newStaffRouter(t *testing.T) (http.Handler, *store.MemoryStore, *stubDispatcher, *stubInvalidator) {
	t.Helper()
	s := store.NewMemoryStore()
	d := &stubDispatcher{}
	inv := &stubInvalidator{}
	h := NewAdminStaffHandler(AdminStaffConfig{
		Devices:    s,
		Customers:  s,
		Dispatcher: d,
		Tokens:     inv,
		Logger:     logging.Discard(),
	})
	r := chi.NewRouter()
	r.Post("/restaurants/{restaurantID}/staff/devices", h.RegisterDevice)
	r.Delete("/restaurants/{restaurantID}/staff/devices/{token}", h.RemoveDevice)
	r.Post("/restaurants/{restaurantID}/messages", h.SendMessage)
	r.Get("/restaurants/{restaurantID}/customers/{phone}", h.GetTranscript)
	return r, s, d, inv
}

func TestRegisterAndRemoveDevice(t *testing.T) {
	router, s, _, inv := newStaffRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/restaurants/r1/staff/devices", strings.NewReader(`{"token":"tok-1","label":"front desk"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	tokens, _ := s.ListStaffTokens(context.Background(), "r1")
	if len(tokens) != 1 || tokens[0] != "tok-1" {
		t.Fatalf("expected token registered, got %v", tokens)
	}

	req = httptest.NewRequest(http.MethodDelete, "/restaurants/r1/staff/devices/tok-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	tokens, _ = s.ListStaffTokens(context.Background(), "r1")
	if len(tokens) != 0 {
		t.Fatalf("expected token removed, got %v", tokens)
	}
	if len(inv.invalidated) != 2 || inv.invalidated[0] != "r1" {
		t.Fatalf("expected cache invalidated twice, got %v", inv.invalidated)
	}
}

func TestRegisterDeviceRequiresToken(t *testing.T) {
	router, _, _, inv := newStaffRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/restaurants/r1/staff/devices", strings.NewReader(`{"token":"  "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(inv.invalidated) != 0 {
		t.Fatalf("cache should not be touched on bad input")
	}
}

func TestSendMessageDispatchesStaffReply(t *testing.T) {
	router, _, d, _ := newStaffRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/restaurants/r1/messages", strings.NewReader(`{"phone":"60123456789","body":"Your table is ready"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(d.replies) != 1 {
		t.Fatalf("expected one dispatched reply, got %d", len(d.replies))
	}
	got := d.replies[0]
	if got.RestaurantID != "r1" || got.Phone != "60123456789" || got.Body != "Your table is ready" || got.CustomerID == "" {
		t.Fatalf("unexpected reply %+v", got)
	}
	if got.Alert != nil {
		t.Fatalf("staff replies must not alert staff")
	}
}

func TestSendMessageReportsDeliveryFailure(t *testing.T) {
	router, _, d, _ := newStaffRouter(t)
	d.err = errors.New("graph down")

	req := httptest.NewRequest(http.MethodPost, "/restaurants/r1/messages", strings.NewReader(`{"phone":"6012","body":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["delivered"] != false {
		t.Fatalf("expected delivered=false, got %v", resp)
	}
}

func TestGetTranscript(t *testing.T) {
	router, s, _, _ := newStaffRouter(t)
	ctx := context.Background()
	customer, _ := s.UpsertCustomer(ctx, "6012", "Aina")
	ts := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	_, _ = s.AppendMessage(ctx, chatlog.Message{RestaurantID: "r1", CustomerID: customer.ID, Sender: chatlog.SenderCustomer, Body: "table for 2", Timestamp: ts})
	_, _ = s.AppendMessage(ctx, chatlog.Message{RestaurantID: "r1", CustomerID: customer.ID, Sender: chatlog.SenderStaff, Body: "booked", Timestamp: ts.Add(time.Second)})
	s.AddTable("r1", bookings.Table{ID: "t1", TableNumber: "T1", Capacity: 2})
	_, _ = s.InsertConfirmedIfFree(ctx, bookings.Booking{
		RestaurantID: "r1", CustomerID: customer.ID, TableID: "t1", Title: "Dinner", PartySize: 2,
		Window: bookings.Window{Start: ts.Add(24 * time.Hour), End: ts.Add(26 * time.Hour)},
	})

	req := httptest.NewRequest(http.MethodGet, "/restaurants/r1/customers/6012?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Customer map[string]string   `json:"customer"`
		Messages []transcriptMessage `json:"messages"`
		Bookings []transcriptBooking `json:"bookings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Customer["name"] != "Aina" {
		t.Fatalf("unexpected customer %v", resp.Customer)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Body != "table for 2" || resp.Messages[1].Sender != chatlog.SenderStaff {
		t.Fatalf("unexpected messages %+v", resp.Messages)
	}
	if len(resp.Bookings) != 1 || resp.Bookings[0].Status != bookings.StatusConfirmed {
		t.Fatalf("unexpected bookings %+v", resp.Bookings)
	}

	req = httptest.NewRequest(http.MethodGet, "/restaurants/r1/customers/6012?limit=abc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}
