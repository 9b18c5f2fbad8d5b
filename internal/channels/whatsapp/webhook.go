package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/internal/observability/metrics"
	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

const maxWebhookBody = 1 << 20

// EventPublisher hands parsed events to the processing queue.
type EventPublisher interface {
	Publish(ctx context.Context, evt pipeline.Event) error
}

// WebhookConfig configures the webhook handler.
type WebhookConfig struct {
	VerifyToken  string
	AppSecret    string
	RestaurantID string
}

// WebhookHandler handles WhatsApp webhook verification and inbound messages.
type WebhookHandler struct {
	cfg       WebhookConfig
	publisher EventPublisher
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
}

// NewWebhookHandler creates a new webhook handler. Without an app secret,
// payload signatures are not checked.
func NewWebhookHandler(cfg WebhookConfig, publisher EventPublisher, m *metrics.PipelineMetrics, logger *logging.Logger) *WebhookHandler {
	if publisher == nil {
		panic("whatsapp: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.AppSecret == "" {
		logger.Warn("whatsapp app secret not set; webhook signatures will not be verified")
	}
	return &WebhookHandler{cfg: cfg, publisher: publisher, metrics: m, logger: logger}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		h.logger.Info("whatsapp webhook verified")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook deliveries. Events are enqueued before
// the 200 so a failed enqueue is redelivered by Meta; redeliveries are caught
// by the idempotency gate downstream.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	status := "accepted"
	defer func() {
		h.metrics.ObserveWebhookLatency(status, time.Since(started).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		status = "bad_request"
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.cfg.AppSecret != "" && !VerifySignature(h.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		status = "unauthorized"
		h.logger.Warn("whatsapp webhook signature mismatch")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		status = "bad_request"
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	events := ParseWebhook(payload, h.cfg.RestaurantID)
	for _, evt := range events {
		if err := h.publisher.Publish(r.Context(), evt); err != nil {
			status = "enqueue_failed"
			h.metrics.ObserveInbound(string(evt.Type), "enqueue_failed")
			h.logger.Error("failed to enqueue whatsapp event", "external_id", evt.ExternalID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		h.metrics.ObserveInbound(string(evt.Type), "accepted")
	}

	w.WriteHeader(http.StatusOK)
}

// ParseWebhook extracts pipeline events from every message in the payload.
// Delivery statuses are ignored.
func ParseWebhook(payload WebhookPayload, restaurantID string) []pipeline.Event {
	var events []pipeline.Event
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				if m.From == "" {
					continue
				}
				evt := pipeline.Event{
					RestaurantID: restaurantID,
					Phone:        m.From,
					DisplayName:  names[m.From],
					ExternalID:   m.ID,
					Timestamp:    parseUnix(m.Timestamp),
					RawType:      m.Type,
				}
				switch {
				case m.Type == "text" && m.Text != nil:
					evt.Type = pipeline.MessageText
					evt.Text = m.Text.Body
				case m.Type == "image" && m.Image != nil:
					evt.Type = pipeline.MessageImage
					evt.MediaID = m.Image.ID
					evt.MediaMIME = m.Image.MimeType
					evt.Caption = m.Image.Caption
				default:
					evt.Type = pipeline.MessageUnsupported
				}
				events = append(events, evt)
			}
		}
	}
	return events
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
