package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

type mockEmailSender struct {
	sent   []EmailMessage
	failOn string
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.failOn != "" && msg.To == m.failOn {
		return errors.New("mock email error")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockPusher struct {
	pushed []string
	errs   map[string]error
}

func (m *mockPusher) Push(ctx context.Context, token string, msg PushMessage) error {
	if err := m.errs[token]; err != nil {
		return err
	}
	m.pushed = append(m.pushed, token)
	return nil
}

type mockRemover struct {
	removed []string
}

func (m *mockRemover) RemoveStaffToken(ctx context.Context, restaurantID, token string) error {
	m.removed = append(m.removed, token)
	return nil
}

func testAlert() StaffAlert {
	return StaffAlert{
		RestaurantID: "r1",
		CustomerID:   "c1",
		CustomerName: "Aina",
		Phone:        "60123456789",
		Preview:      "table for 4 tonight at 8pm",
		Action:       "confirm_booking",
	}
}

func TestStaffNotifier_NoRecipients(t *testing.T) {
	n := NewStaffNotifier(StaffNotifierConfig{}, logging.Discard())
	if err := n.NotifyNewMessage(context.Background(), testAlert()); err != nil {
		t.Fatalf("expected nil without recipients, got %v", err)
	}

	var nilNotifier *StaffNotifier
	if err := nilNotifier.NotifyNewMessage(context.Background(), testAlert()); err != nil {
		t.Fatalf("nil notifier must be a no-op, got %v", err)
	}
}

func TestStaffNotifier_PushAndEmail(t *testing.T) {
	pusher := &mockPusher{}
	email := &mockEmailSender{}
	n := NewStaffNotifier(StaffNotifierConfig{
		Tokens: NewTokenCache(&countingSource{tokens: []string{"d1", "d2"}}, time.Minute),
		Pusher: pusher,
		Email:  email,
		Emails: []string{"host@example.com", " "},
	}, logging.Discard())

	if err := n.NotifyNewMessage(context.Background(), testAlert()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pusher.pushed) != 2 {
		t.Fatalf("expected 2 pushes, got %v", pusher.pushed)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	if !strings.Contains(email.sent[0].Subject, "Aina") || !strings.Contains(email.sent[0].Body, "table for 4") {
		t.Errorf("unexpected email %+v", email.sent[0])
	}
}

func TestStaffNotifier_RemovesUnregisteredTokens(t *testing.T) {
	src := &countingSource{tokens: []string{"good", "stale"}}
	remover := &mockRemover{}
	pusher := &mockPusher{errs: map[string]error{"stale": ErrTokenUnregistered}}
	n := NewStaffNotifier(StaffNotifierConfig{
		Tokens:  NewTokenCache(src, time.Minute),
		Pusher:  pusher,
		Remover: remover,
	}, logging.Discard())

	if err := n.NotifyNewMessage(context.Background(), testAlert()); err != nil {
		t.Fatalf("unregistered tokens are not a delivery failure: %v", err)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "stale" {
		t.Fatalf("expected stale token removed, got %v", remover.removed)
	}
	_ = n.NotifyNewMessage(context.Background(), testAlert())
	if src.calls != 2 {
		t.Fatalf("expected cache invalidation to force a reload, got %d reads", src.calls)
	}
}

func TestStaffNotifier_JoinsFailures(t *testing.T) {
	pusher := &mockPusher{errs: map[string]error{"d1": errors.New("fcm 500")}}
	email := &mockEmailSender{failOn: "host@example.com"}
	n := NewStaffNotifier(StaffNotifierConfig{
		Tokens: NewTokenCache(&countingSource{tokens: []string{"d1"}}, time.Minute),
		Pusher: pusher,
		Email:  email,
		Emails: []string{"host@example.com"},
	}, logging.Discard())

	err := n.NotifyNewMessage(context.Background(), testAlert())
	if err == nil || !strings.Contains(err.Error(), "fcm 500") || !strings.Contains(err.Error(), "mock email error") {
		t.Fatalf("expected both failures joined, got %v", err)
	}
}
