package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 200
)

// StaffDeviceStore persists staff push tokens.
type StaffDeviceStore interface {
	AddStaffToken(ctx context.Context, restaurantID, token, label string) error
	RemoveStaffToken(ctx context.Context, restaurantID, token string) error
}

// ConversationStore exposes the customer side of the store to staff.
type ConversationStore interface {
	UpsertCustomer(ctx context.Context, phone, name string) (*bookings.Customer, error)
	ListRecentMessages(ctx context.Context, restaurantID, customerID string, limit int) ([]chatlog.Message, error)
	ListCustomerBookings(ctx context.Context, restaurantID, customerID string) ([]bookings.Booking, error)
}

// ReplyDispatcher records and transmits an outbound staff message.
type ReplyDispatcher interface {
	Dispatch(ctx context.Context, r pipeline.Reply) error
}

type tokenInvalidator interface {
	Invalidate(restaurantID string)
}

// AdminStaffConfig wires an AdminStaffHandler. Tokens may be nil.
type AdminStaffConfig struct {
	Devices    StaffDeviceStore
	Customers  ConversationStore
	Dispatcher ReplyDispatcher
	Tokens     tokenInvalidator
	Timeout    time.Duration
	Logger     *logging.Logger
}

// AdminStaffHandler hosts the staff endpoints: device registration, manual
// replies and transcript lookups.
type AdminStaffHandler struct {
	devices    StaffDeviceStore
	customers  ConversationStore
	dispatcher ReplyDispatcher
	tokens     tokenInvalidator
	timeout    time.Duration
	logger     *logging.Logger
}

func NewAdminStaffHandler(cfg AdminStaffConfig) *AdminStaffHandler {
	if cfg.Devices == nil || cfg.Customers == nil || cfg.Dispatcher == nil {
		panic("handlers: admin staff handler requires devices, customers and dispatcher")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AdminStaffHandler{
		devices:    cfg.Devices,
		customers:  cfg.Customers,
		dispatcher: cfg.Dispatcher,
		tokens:     cfg.Tokens,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

type registerDeviceRequest struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// RegisterDevice handles POST /admin/restaurants/{restaurantID}/staff/devices.
func (h *AdminStaffHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.devices.AddStaffToken(ctx, restaurantID, token, strings.TrimSpace(req.Label)); err != nil {
		h.logger.Error("register staff device failed", "error", err, "restaurant_id", restaurantID)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	h.invalidate(restaurantID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// RemoveDevice handles DELETE /admin/restaurants/{restaurantID}/staff/devices/{token}.
func (h *AdminStaffHandler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.devices.RemoveStaffToken(ctx, restaurantID, token); err != nil {
		h.logger.Error("remove staff device failed", "error", err, "restaurant_id", restaurantID)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	h.invalidate(restaurantID)
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

// SendMessage handles POST /admin/restaurants/{restaurantID}/messages. The
// message is recorded in the customer's thread before it is sent, exactly as
// an automated reply would be.
func (h *AdminStaffHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	phone := strings.TrimSpace(req.Phone)
	body := strings.TrimSpace(req.Body)
	if phone == "" || body == "" {
		http.Error(w, "phone and body required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	customer, err := h.customers.UpsertCustomer(ctx, phone, "")
	if err != nil {
		h.logger.Error("resolve customer failed", "error", err, "restaurant_id", restaurantID)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	err = h.dispatcher.Dispatch(ctx, pipeline.Reply{
		RestaurantID: restaurantID,
		CustomerID:   customer.ID,
		Phone:        phone,
		Body:         body,
	})
	if err != nil {
		h.logger.Warn("staff message not delivered", "error", err, "customer_id", customer.ID)
		writeJSON(w, http.StatusBadGateway, map[string]any{"customer_id": customer.ID, "delivered": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"customer_id": customer.ID, "delivered": true})
}

type transcriptMessage struct {
	Sender    chatlog.Sender `json:"sender"`
	Body      string         `json:"body"`
	Timestamp time.Time      `json:"timestamp"`
}

type transcriptBooking struct {
	ID        string          `json:"id"`
	TableID   string          `json:"table_id"`
	Title     string          `json:"title"`
	PartySize int             `json:"pax"`
	Status    bookings.Status `json:"status"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
}

// GetTranscript handles GET /admin/restaurants/{restaurantID}/customers/{phone}.
func (h *AdminStaffHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	phone := strings.TrimSpace(chi.URLParam(r, "phone"))
	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	customer, err := h.customers.UpsertCustomer(ctx, phone, "")
	if err != nil {
		h.logger.Error("resolve customer failed", "error", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	msgs, err := h.customers.ListRecentMessages(ctx, restaurantID, customer.ID, limit)
	if err != nil {
		h.logger.Error("list messages failed", "error", err, "customer_id", customer.ID)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	bks, err := h.customers.ListCustomerBookings(ctx, restaurantID, customer.ID)
	if err != nil {
		h.logger.Error("list bookings failed", "error", err, "customer_id", customer.ID)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	messages := make([]transcriptMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, transcriptMessage{Sender: m.Sender, Body: m.Body, Timestamp: m.Timestamp})
	}
	out := make([]transcriptBooking, 0, len(bks))
	for _, b := range bks {
		out = append(out, transcriptBooking{
			ID: b.ID, TableID: b.TableID, Title: b.Title, PartySize: b.PartySize,
			Status: b.Status, Start: b.Window.Start, End: b.Window.End,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer": map[string]string{"id": customer.ID, "name": customer.Name, "phone": customer.Phone},
		"messages": messages,
		"bookings": out,
	})
}

func (h *AdminStaffHandler) invalidate(restaurantID string) {
	if h.tokens != nil {
		h.tokens.Invalidate(restaurantID)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
