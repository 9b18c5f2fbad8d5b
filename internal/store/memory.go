package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
)

// MemoryStore is an in-process implementation of every store surface the
// pipeline uses. It backs local development without DATABASE_URL and the
// package tests; the overlap check runs under the same mutex as the write.
type MemoryStore struct {
	mu        sync.RWMutex
	tables    map[string][]bookings.Table
	bookings  map[string]*bookings.Booking
	customers map[string]*bookings.Customer
	byPhone   map[string]string
	messages  []chatlog.Message
	seq       int64
	staff     map[string]map[string]struct{}
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:    make(map[string][]bookings.Table),
		bookings:  make(map[string]*bookings.Booking),
		customers: make(map[string]*bookings.Customer),
		byPhone:   make(map[string]string),
		staff:     make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// SetClock overrides the clock used to stamp messages without a timestamp.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// AddTable seeds a table into a restaurant's inventory.
func (s *MemoryStore) AddTable(restaurantID string, table bookings.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if table.ID == "" {
		table.ID = uuid.NewString()
	}
	s.tables[restaurantID] = append(s.tables[restaurantID], table)
}

// ListTables returns the restaurant's table inventory.
func (s *MemoryStore) ListTables(_ context.Context, restaurantID string) ([]bookings.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bookings.Table, len(s.tables[restaurantID]))
	copy(out, s.tables[restaurantID])
	return out, nil
}

// GetTable resolves one table in the restaurant inventory.
func (s *MemoryStore) GetTable(_ context.Context, restaurantID, tableID string) (*bookings.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tables[restaurantID] {
		if t.ID == tableID {
			table := t
			return &table, nil
		}
	}
	return nil, bookings.ErrTableNotFound
}

// ListConfirmedReservations returns the confirmed booking windows in the
// restaurant that have not ended yet.
func (s *MemoryStore) ListConfirmedReservations(_ context.Context, restaurantID string) ([]bookings.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var out []bookings.Reservation
	for _, b := range s.sortedBookings() {
		if b.RestaurantID != restaurantID || b.Status != bookings.StatusConfirmed || !b.Window.End.After(now) {
			continue
		}
		out = append(out, bookings.Reservation{BookingID: b.ID, TableID: b.TableID, Window: b.Window})
	}
	return out, nil
}

// ListCustomerBookings returns all bookings the customer holds in the restaurant.
func (s *MemoryStore) ListCustomerBookings(_ context.Context, restaurantID, customerID string) ([]bookings.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []bookings.Booking
	for _, b := range s.sortedBookings() {
		if b.RestaurantID == restaurantID && b.CustomerID == customerID {
			out = append(out, *b)
		}
	}
	return out, nil
}

// GetBooking loads a booking by id.
func (s *MemoryStore) GetBooking(_ context.Context, bookingID string) (*bookings.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, bookings.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

// InsertConfirmedIfFree inserts the booking unless a confirmed booking overlaps it.
func (s *MemoryStore) InsertConfirmedIfFree(_ context.Context, b bookings.Booking) (*bookings.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlapsLocked(b.RestaurantID, b.TableID, b.Window, "") {
		return nil, bookings.ErrSlotUnavailable
	}
	b.ID = uuid.NewString()
	b.Status = bookings.StatusConfirmed
	stored := b
	s.bookings[b.ID] = &stored
	return &b, nil
}

// UpdateIfFree rewrites the booking unless another confirmed booking overlaps it.
func (s *MemoryStore) UpdateIfFree(_ context.Context, b bookings.Booking) (*bookings.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; !ok {
		return nil, bookings.ErrBookingNotFound
	}
	if b.Status == bookings.StatusConfirmed && s.overlapsLocked(b.RestaurantID, b.TableID, b.Window, b.ID) {
		return nil, bookings.ErrSlotUnavailable
	}
	stored := b
	s.bookings[b.ID] = &stored
	return &b, nil
}

// SetStatus changes the booking status.
func (s *MemoryStore) SetStatus(_ context.Context, bookingID string, status bookings.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return bookings.ErrBookingNotFound
	}
	b.Status = status
	return nil
}

// BookingCount returns the number of stored bookings.
func (s *MemoryStore) BookingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}

// UpsertCustomer returns the customer for phone, creating it on first contact
// and attaching a name only when none was known.
func (s *MemoryStore) UpsertCustomer(_ context.Context, phone, name string) (*bookings.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPhone[phone]; ok {
		c := s.customers[id]
		if c.Name == "" && strings.TrimSpace(name) != "" {
			c.Name = strings.TrimSpace(name)
		}
		cp := *c
		return &cp, nil
	}
	c := &bookings.Customer{ID: uuid.NewString(), Name: strings.TrimSpace(name), Phone: phone}
	s.customers[c.ID] = c
	s.byPhone[phone] = c.ID
	cp := *c
	return &cp, nil
}

// AppendMessage records a chat message, rejecting a repeated external id.
func (s *MemoryStore) AppendMessage(_ context.Context, msg chatlog.Message) (*chatlog.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ExternalID != "" {
		for _, m := range s.messages {
			if m.CustomerID == msg.CustomerID && m.ExternalID == msg.ExternalID {
				return nil, chatlog.ErrDuplicateMessage
			}
		}
	}
	s.seq++
	msg.ID = uuid.NewString()
	msg.Seq = s.seq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

// ListRecentMessages returns up to limit of the customer's latest messages.
func (s *MemoryStore) ListRecentMessages(_ context.Context, restaurantID, customerID string, limit int) ([]chatlog.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chatlog.Message
	for _, m := range s.messages {
		if m.RestaurantID == restaurantID && m.CustomerID == customerID {
			out = append(out, m)
		}
	}
	return chatlog.Recent(out, limit), nil
}

// HasExternalID reports whether the customer already sent a message with externalID.
func (s *MemoryStore) HasExternalID(_ context.Context, restaurantID, customerID, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.RestaurantID == restaurantID && m.CustomerID == customerID && m.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

// LatestTextMatch returns the timestamp of the customer's most recent message
// with exactly this text.
func (s *MemoryStore) LatestTextMatch(_ context.Context, restaurantID, customerID, text string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	found := false
	for _, m := range s.messages {
		if m.RestaurantID != restaurantID || m.CustomerID != customerID || m.Sender != chatlog.SenderCustomer || m.Body != text {
			continue
		}
		if !found || m.Timestamp.After(latest) {
			latest = m.Timestamp
			found = true
		}
	}
	return latest, found, nil
}

// ListStaffTokens returns the registered staff device tokens.
func (s *MemoryStore) ListStaffTokens(_ context.Context, restaurantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.staff[restaurantID]))
	for token := range s.staff[restaurantID] {
		out = append(out, token)
	}
	sort.Strings(out)
	return out, nil
}

// AddStaffToken registers a staff device token.
func (s *MemoryStore) AddStaffToken(_ context.Context, restaurantID, token, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staff[restaurantID] == nil {
		s.staff[restaurantID] = make(map[string]struct{})
	}
	s.staff[restaurantID][token] = struct{}{}
	return nil
}

// RemoveStaffToken unregisters a staff device token.
func (s *MemoryStore) RemoveStaffToken(_ context.Context, restaurantID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staff[restaurantID], token)
	return nil
}

func (s *MemoryStore) overlapsLocked(restaurantID, tableID string, w bookings.Window, excludeID string) bool {
	for id, existing := range s.bookings {
		if id == excludeID || existing.Status != bookings.StatusConfirmed {
			continue
		}
		if existing.RestaurantID == restaurantID && existing.TableID == tableID && existing.Window.Overlaps(w) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) sortedBookings() []*bookings.Booking {
	out := make([]*bookings.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Window.Start.Equal(out[j].Window.Start) {
			return out[i].Window.Start.Before(out[j].Window.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
