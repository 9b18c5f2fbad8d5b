package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
)

// PromptConfig holds the restaurant rules embedded in every prompt.
type PromptConfig struct {
	Location       *time.Location
	MaxReservation time.Duration
	ServiceType    string
	ClientContext  string
}

type promptTable struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type promptReservation struct {
	TableID string `json:"table_id"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type promptChat struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	At      string `json:"at"`
}

type promptBooking struct {
	BookingID string `json:"booking_id"`
	TableID   string `json:"table_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Pax       int    `json:"pax"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

// buildPrompt renders the system instructions and the user prompt.
func buildPrompt(cfg PromptConfig, in Input) ([]string, string) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	local := now.In(loc)
	maxHours := cfg.MaxReservation.Hours()
	if maxHours <= 0 {
		maxHours = 2
	}

	dc := in.Context
	tables := make([]promptTable, 0, len(dc.Tables))
	for _, t := range dc.Tables {
		tables = append(tables, promptTable{ID: t.ID, Description: t.Describe()})
	}
	reserved := make([]promptReservation, 0, len(dc.Reservations))
	for _, r := range dc.Reservations {
		reserved = append(reserved, promptReservation{
			TableID: r.TableID,
			Start:   FormatLocal(r.Window.Start, loc),
			End:     FormatLocal(r.Window.End, loc),
		})
	}
	history := make([]promptChat, 0, len(dc.History))
	for _, m := range dc.History {
		body := m.Body
		if m.IsMedia() {
			body = "[image] " + strings.TrimSpace(strings.TrimPrefix(body, chatlog.MediaPrefix))
		}
		history = append(history, promptChat{Sender: string(m.Sender), Message: body, At: FormatLocal(m.Timestamp, loc)})
	}
	own := make([]promptBooking, 0, len(dc.CustomerBookings))
	for _, b := range dc.CustomerBookings {
		own = append(own, promptBooking{
			BookingID: b.ID,
			TableID:   b.TableID,
			Start:     FormatLocal(b.Window.Start, loc),
			End:       FormatLocal(b.Window.End, loc),
			Pax:       b.PartySize,
			Status:    string(b.Status),
			Notes:     b.Notes,
		})
	}

	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		name = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current date and time (%s): %s\n", loc.String(), local.Format("Monday 02/01/2006 15:04"))
	fmt.Fprintf(&b, "Customer name: %s\n\n", name)
	writeSection(&b, "Customer Chat History (for context)", history)
	writeSection(&b, "Restaurant Tables", tables)
	writeSection(&b, "Currently Reserved Tables", reserved)
	writeSection(&b, "Customer Bookings", own)
	if dc.IsDegraded() {
		fmt.Fprintf(&b, "Note: some information could not be loaded (%s). Do not confirm anything that depends on it; ask the customer to try again shortly.\n\n",
			strings.Join(dc.Degraded, ", "))
	}

	b.WriteString("General Instructions:\n")
	b.WriteString("1. Use the customer's name naturally.\n")
	fmt.Fprintf(&b, "2. Every date and time above is local restaurant time (%s). Read dates and times back in local time and fill start_date, start_time, end_date and end_time in local time.\n", loc.String())
	b.WriteString("3. Never mention anything technical to the customer (ids, date formats, timezones).\n")
	b.WriteString("4. Keep messages short.\n\n")

	b.WriteString("Booking Placement Instructions:\n")
	b.WriteString("1. Choose a table_id only from Restaurant Tables whose capacity fits the party and which is not reserved at an overlapping time in Currently Reserved Tables. Never return placeholders like \"N/A\". If no table fits, suggest another table or time.\n")
	b.WriteString("2. Once the customer confirms the booking details, set action to \"confirm_booking\" and include the chosen table_id.\n")
	fmt.Fprintf(&b, "3. Tell the customer that the maximum reservation time is %s hours; end time must not be more than that after start time.\n", formatHours(maxHours))
	b.WriteString("4. Do not ask the customer for a title.\n")
	b.WriteString("5. If the requested time is in the past, kindly reject and say so.\n")
	b.WriteString("6. \"Tomorrow\" means the current local date plus one day; \"tonight\" means the current local date.\n\n")

	b.WriteString("Booking Update Instructions:\n")
	b.WriteString("1. Fill booking_id only when the customer confirms the updated details, using an id from Customer Bookings.\n")
	b.WriteString("2. Once confirmed, set action to \"confirm_update_booking\" and return the full updated booking details.\n")
	b.WriteString("3. If the new time or party size clashes with other reservations, recommend another time or table.\n\n")

	b.WriteString("Booking Cancel Instructions:\n")
	b.WriteString("1. Fill booking_id only when the customer confirms the cancellation; otherwise leave it empty.\n")
	b.WriteString("2. Once confirmed, set action to \"confirm_cancel_booking\" and return the cancelled booking_id.\n\n")

	b.WriteString("Conversation:\n")
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image != nil {
		text = "[the customer sent an image]"
	}
	fmt.Fprintf(&b, "%q\n", text)

	var system []string
	if clientCtx := strings.TrimSpace(cfg.ClientContext); clientCtx != "" {
		system = append(system, clientCtx)
	}
	return system, b.String()
}

func writeSection(b *strings.Builder, title string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("[]")
	}
	fmt.Fprintf(b, "%s:\n%s\n=========================================\n\n", title, data)
}

func formatHours(h float64) string {
	if h == float64(int(h)) {
		return fmt.Sprintf("%d", int(h))
	}
	return fmt.Sprintf("%.1f", h)
}
