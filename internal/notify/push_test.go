package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

func newTestPusher(t *testing.T, handler http.HandlerFunc) *FCMPusher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewFCMPusher(context.Background(), "demo-project", logging.Discard(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("new pusher: %v", err)
	}
	return p
}

func TestFCMPusherSendsMessage(t *testing.T) {
	var gotPath string
	var body map[string]any
	p := newTestPusher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"projects/demo-project/messages/1"}`))
	})

	err := p.Push(context.Background(), "device-1", PushMessage{Title: "New message", Body: "table for 4", Data: map[string]string{"phone": "6012"}})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotPath != "/v1/projects/demo-project/messages:send" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	msg, _ := body["message"].(map[string]any)
	if msg["token"] != "device-1" {
		t.Fatalf("expected token in request, got %v", body)
	}
}

func TestFCMPusherMapsNotFoundToUnregistered(t *testing.T) {
	p := newTestPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	})

	err := p.Push(context.Background(), "stale", PushMessage{Title: "x"})
	if !errors.Is(err, ErrTokenUnregistered) {
		t.Fatalf("expected ErrTokenUnregistered, got %v", err)
	}
}

func TestNewFCMPusherRequiresProject(t *testing.T) {
	if _, err := NewFCMPusher(context.Background(), " ", nil); err == nil {
		t.Fatal("expected error without project id")
	}
}
