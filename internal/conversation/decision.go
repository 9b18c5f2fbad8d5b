package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
)

// ErrInterpretationFailed marks a reasoning response that could not be turned
// into a Decision.
var ErrInterpretationFailed = errors.New("conversation: interpretation failed")

// Action is the closed set of decision tags.
type Action string

const (
	ActionRequestBookingInfo   Action = "request_booking_info"
	ActionRequestUpdateBooking Action = "request_update_booking"
	ActionRequestCancelBooking Action = "request_cancel_booking"
	ActionConfirmBooking       Action = "confirm_booking"
	ActionConfirmUpdateBooking Action = "confirm_update_booking"
	ActionConfirmCancelBooking Action = "confirm_cancel_booking"
	ActionModify               Action = "modify"
	ActionCancel               Action = "cancel"
	ActionReject               Action = "reject"
	ActionConfirmed            Action = "confirmed"
)

var allActions = []Action{
	ActionRequestBookingInfo,
	ActionRequestUpdateBooking,
	ActionRequestCancelBooking,
	ActionConfirmBooking,
	ActionConfirmUpdateBooking,
	ActionConfirmCancelBooking,
	ActionModify,
	ActionCancel,
	ActionReject,
	ActionConfirmed,
}

func actionNames() []string {
	out := make([]string, len(allActions))
	for i, a := range allActions {
		out[i] = string(a)
	}
	return out
}

// Valid reports whether a is one of the closed set.
func (a Action) Valid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

// BookingExecutor applies gated mutations. *bookings.Executor implements it.
type BookingExecutor interface {
	Create(ctx context.Context, req bookings.CreateRequest) (*bookings.Booking, error)
	Update(ctx context.Context, req bookings.UpdateRequest) (*bookings.Booking, error)
	Cancel(ctx context.Context, req bookings.CancelRequest) (*bookings.Booking, error)
}

// Mutation is a gated store change. Each variant only exists when its
// required fields were present.
type Mutation interface {
	Kind() string
	Apply(ctx context.Context, exec BookingExecutor) (*bookings.Booking, error)
}

// CreateBooking creates a confirmed booking.
type CreateBooking struct {
	bookings.CreateRequest
}

func (CreateBooking) Kind() string { return "create" }

func (m CreateBooking) Apply(ctx context.Context, exec BookingExecutor) (*bookings.Booking, error) {
	return exec.Create(ctx, m.CreateRequest)
}

// UpdateBooking rewrites and reconfirms an existing booking.
type UpdateBooking struct {
	bookings.UpdateRequest
}

func (UpdateBooking) Kind() string { return "update" }

func (m UpdateBooking) Apply(ctx context.Context, exec BookingExecutor) (*bookings.Booking, error) {
	return exec.Update(ctx, m.UpdateRequest)
}

// CancelBooking cancels an existing booking.
type CancelBooking struct {
	bookings.CancelRequest
}

func (CancelBooking) Kind() string { return "cancel" }

func (m CancelBooking) Apply(ctx context.Context, exec BookingExecutor) (*bookings.Booking, error) {
	return exec.Cancel(ctx, m.CancelRequest)
}

// Decision is the validated output of the reasoning step.
type Decision struct {
	Action       Action
	Reply        string
	CustomerName string
	BookingID    string
	TableID      string
	PartySize    int
	Window       bookings.Window
	Notes        string
	// Mutation is nil for reply-only decisions.
	Mutation Mutation
}

type rawDecision struct {
	Action          string  `json:"action"`
	Name            string  `json:"name"`
	BookingID       *string `json:"booking_id"`
	StartDate       string  `json:"start_date"`
	StartTime       string  `json:"start_time"`
	EndDate         string  `json:"end_date"`
	EndTime         string  `json:"end_time"`
	NumGuests       *int    `json:"num_guests"`
	SpecialRequests string  `json:"special_requests"`
	BookingTitle    string  `json:"booking_title"`
	TableID         string  `json:"table_id"`
	Message         string  `json:"message"`
}

// gateParams carries the values gating needs from outside the response.
type gateParams struct {
	CustomerID   string
	RestaurantID string
	ServiceType  string
	Location     *time.Location
}

// parseDecision validates a raw response against the decision schema and
// applies mutation gating.
func parseDecision(text string, p gateParams) (Decision, error) {
	body := stripCodeFence(text)
	if body == "" {
		return Decision{}, fmt.Errorf("%w: empty response", ErrInterpretationFailed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return Decision{}, fmt.Errorf("%w: response is not a JSON object: %w", ErrInterpretationFailed, err)
	}
	var missing []string
	for _, name := range decisionSchema.Required() {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Decision{}, fmt.Errorf("%w: missing fields %s", ErrInterpretationFailed, strings.Join(missing, ", "))
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Decision{}, fmt.Errorf("%w: field type mismatch: %w", ErrInterpretationFailed, err)
	}
	action := Action(strings.TrimSpace(raw.Action))
	if !action.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown action %q", ErrInterpretationFailed, raw.Action)
	}
	if strings.TrimSpace(raw.Message) == "" {
		return Decision{}, fmt.Errorf("%w: empty message", ErrInterpretationFailed)
	}

	d := Decision{
		Action:       action,
		Reply:        strings.TrimSpace(raw.Message),
		CustomerName: present(raw.Name),
		TableID:      present(raw.TableID),
		Notes:        strings.TrimSpace(raw.SpecialRequests),
	}
	if raw.BookingID != nil {
		d.BookingID = present(*raw.BookingID)
	}
	if raw.NumGuests != nil && *raw.NumGuests > 0 {
		d.PartySize = *raw.NumGuests
	}
	start, startErr := ParseDecisionTime(raw.StartDate, raw.StartTime, p.Location)
	end, endErr := ParseDecisionTime(raw.EndDate, raw.EndTime, p.Location)
	if startErr == nil && endErr == nil {
		d.Window = bookings.Window{Start: start, End: end}
	}

	d.Mutation = gate(d, raw, p)
	return d, nil
}

// gate re-validates a claimed confirmation. The schema constrains shape, not
// completeness, so every required field is checked again here.
func gate(d Decision, raw rawDecision, p gateParams) Mutation {
	switch d.Action {
	case ActionConfirmBooking:
		title := present(raw.BookingTitle)
		if d.PartySize > 0 && strings.TrimSpace(p.ServiceType) != "" {
			title = fmt.Sprintf("%s Reservation for %d Pax", p.ServiceType, d.PartySize)
		}
		if p.CustomerID == "" || d.TableID == "" || title == "" || d.PartySize <= 0 ||
			d.Window.Start.IsZero() || d.Window.End.IsZero() || strings.TrimSpace(p.ServiceType) == "" {
			return nil
		}
		return CreateBooking{bookings.CreateRequest{
			RestaurantID: p.RestaurantID,
			CustomerID:   p.CustomerID,
			TableID:      d.TableID,
			Title:        title,
			PartySize:    d.PartySize,
			Window:       d.Window,
			Notes:        d.Notes,
			Type:         p.ServiceType,
		}}
	case ActionConfirmUpdateBooking:
		if d.BookingID == "" {
			return nil
		}
		return UpdateBooking{bookings.UpdateRequest{
			BookingID:  d.BookingID,
			CustomerID: p.CustomerID,
			TableID:    d.TableID,
			PartySize:  d.PartySize,
			Window:     d.Window,
			Notes:      d.Notes,
		}}
	case ActionConfirmCancelBooking:
		if d.BookingID == "" {
			return nil
		}
		return CancelBooking{bookings.CancelRequest{BookingID: d.BookingID, CustomerID: p.CustomerID}}
	default:
		return nil
	}
}

var placeholders = map[string]struct{}{
	"n/a": {}, "na": {}, "null": {}, "none": {}, "nil": {}, "undefined": {}, "-": {},
}

// present trims s and maps placeholder values to empty.
func present(s string) string {
	s = strings.TrimSpace(s)
	if _, ok := placeholders[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
