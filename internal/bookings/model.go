package bookings

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Customer is a person chatting with the restaurant.
type Customer struct {
	ID    string
	Name  string
	Phone string
}

// Table is a bookable unit in the restaurant. Read-only for the pipeline.
type Table struct {
	ID          string `json:"id"`
	TableNumber string `json:"table_number"`
	Capacity    int    `json:"capacity"`
	Location    string `json:"location"`
	Movable     bool   `json:"movable"`
	Status      string `json:"status"`
}

// Describe renders the table the way guests and the assistant refer to it.
func (t Table) Describe() string {
	return fmt.Sprintf("%s (At %s for %d pax)", t.TableNumber, t.Location, t.Capacity)
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.End.After(w.Start)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two half-open windows share at least one instant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Booking is a reservation record.
type Booking struct {
	ID           string
	RestaurantID string
	CustomerID   string
	TableID      string // empty until assigned
	Title        string
	PartySize    int
	Window       Window
	Status       Status
	Notes        string
	Type         string
}

// Reservation is the restaurant-wide view of a confirmed booking used for
// availability checks.
type Reservation struct {
	BookingID string `json:"booking_id"`
	TableID   string `json:"table_id"`
	Window    Window `json:"window"`
}
