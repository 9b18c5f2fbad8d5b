package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

var bookingsTracer = otel.Tracer("restaurant.internal.bookings")

// Repository is the booking store surface the executor writes through.
// InsertConfirmedIfFree and UpdateIfFree must refuse (ErrSlotUnavailable) when
// another confirmed booking on the same table overlaps the window.
type Repository interface {
	GetBooking(ctx context.Context, bookingID string) (*Booking, error)
	InsertConfirmedIfFree(ctx context.Context, b Booking) (*Booking, error)
	UpdateIfFree(ctx context.Context, b Booking) (*Booking, error)
	SetStatus(ctx context.Context, bookingID string, status Status) error
}

// TableCatalog resolves a table in the restaurant inventory.
type TableCatalog interface {
	GetTable(ctx context.Context, restaurantID, tableID string) (*Table, error)
}

// CreateRequest carries every field a new confirmed booking needs.
type CreateRequest struct {
	RestaurantID string
	CustomerID   string
	TableID      string
	Title        string
	PartySize    int
	Window       Window
	Notes        string
	Type         string
}

// UpdateRequest changes an existing booking. Zero-valued fields keep the
// current value.
type UpdateRequest struct {
	BookingID  string
	CustomerID string
	TableID    string
	PartySize  int
	Window     Window
	Notes      string
}

// CancelRequest cancels an existing booking.
type CancelRequest struct {
	BookingID  string
	CustomerID string
}

// Executor applies gated booking mutations with commit-time validation.
type Executor struct {
	repo        Repository
	tables      TableCatalog
	maxDuration time.Duration
	now         func() time.Time
	logger      *logging.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithMaxDuration caps reservation length.
func WithMaxDuration(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.maxDuration = d
		}
	}
}

// WithClock overrides the wall clock used for past-date checks.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor constructs a booking mutation executor.
func NewExecutor(repo Repository, tables TableCatalog, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	if repo == nil {
		panic("bookings: repository required")
	}
	if tables == nil {
		panic("bookings: table catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Executor{
		repo:        repo,
		tables:      tables,
		maxDuration: 2 * time.Hour,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create inserts a confirmed booking after re-validating the table and window.
func (e *Executor) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("restaurant.customer_id", req.CustomerID),
		attribute.String("restaurant.table_id", req.TableID),
	)

	if err := validateCreate(req); err != nil {
		return nil, e.fail("create", err, "customer_id", req.CustomerID)
	}
	candidate := Booking{
		RestaurantID: req.RestaurantID,
		CustomerID:   req.CustomerID,
		TableID:      req.TableID,
		Title:        req.Title,
		PartySize:    req.PartySize,
		Window:       req.Window,
		Status:       StatusConfirmed,
		Notes:        req.Notes,
		Type:         req.Type,
	}
	if err := e.checkPlacement(ctx, candidate); err != nil {
		span.RecordError(err)
		return nil, e.fail("create", err, "customer_id", req.CustomerID, "table_id", req.TableID)
	}

	created, err := e.repo.InsertConfirmedIfFree(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		return nil, e.fail("create", err, "customer_id", req.CustomerID, "table_id", req.TableID)
	}
	e.logger.Info("booking created",
		"booking_id", created.ID,
		"customer_id", created.CustomerID,
		"table_id", created.TableID,
		"party_size", created.PartySize,
		"start", created.Window.Start,
	)
	return created, nil
}

// Update rewrites an existing booking and reconfirms it. On failure the stored
// booking is untouched.
func (e *Executor) Update(ctx context.Context, req UpdateRequest) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.update")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.booking_id", req.BookingID))

	if strings.TrimSpace(req.BookingID) == "" {
		return nil, e.fail("update", fmt.Errorf("%w: booking id required", ErrInvalidBooking))
	}
	existing, err := e.repo.GetBooking(ctx, req.BookingID)
	if err != nil {
		span.RecordError(err)
		return nil, e.fail("update", err, "booking_id", req.BookingID)
	}
	if req.CustomerID != "" && existing.CustomerID != req.CustomerID {
		return nil, e.fail("update", ErrNotOwner, "booking_id", req.BookingID, "customer_id", req.CustomerID)
	}

	merged := *existing
	if strings.TrimSpace(req.TableID) != "" {
		merged.TableID = req.TableID
	}
	if req.PartySize > 0 {
		merged.PartySize = req.PartySize
	}
	if req.Window.Valid() {
		merged.Window = req.Window
	}
	if strings.TrimSpace(req.Notes) != "" {
		merged.Notes = req.Notes
	}
	merged.Status = StatusConfirmed

	if merged.TableID == "" {
		return nil, e.fail("update", fmt.Errorf("%w: no table assigned", ErrInvalidBooking), "booking_id", req.BookingID)
	}
	if err := e.checkPlacement(ctx, merged); err != nil {
		span.RecordError(err)
		return nil, e.fail("update", err, "booking_id", req.BookingID)
	}

	updated, err := e.repo.UpdateIfFree(ctx, merged)
	if err != nil {
		span.RecordError(err)
		return nil, e.fail("update", err, "booking_id", req.BookingID)
	}
	e.logger.Info("booking updated", "booking_id", updated.ID, "table_id", updated.TableID, "start", updated.Window.Start)
	return updated, nil
}

// Cancel marks a booking cancelled. Cancelling a cancelled booking is a no-op.
func (e *Executor) Cancel(ctx context.Context, req CancelRequest) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.booking_id", req.BookingID))

	if strings.TrimSpace(req.BookingID) == "" {
		return nil, e.fail("cancel", fmt.Errorf("%w: booking id required", ErrInvalidBooking))
	}
	existing, err := e.repo.GetBooking(ctx, req.BookingID)
	if err != nil {
		span.RecordError(err)
		return nil, e.fail("cancel", err, "booking_id", req.BookingID)
	}
	if req.CustomerID != "" && existing.CustomerID != req.CustomerID {
		return nil, e.fail("cancel", ErrNotOwner, "booking_id", req.BookingID, "customer_id", req.CustomerID)
	}
	if existing.Status == StatusCancelled {
		e.logger.Debug("booking already cancelled", "booking_id", existing.ID)
		return existing, nil
	}
	if err := e.repo.SetStatus(ctx, existing.ID, StatusCancelled); err != nil {
		span.RecordError(err)
		return nil, e.fail("cancel", err, "booking_id", req.BookingID)
	}
	cancelled := *existing
	cancelled.Status = StatusCancelled
	e.logger.Info("booking cancelled", "booking_id", cancelled.ID, "customer_id", cancelled.CustomerID)
	return &cancelled, nil
}

// checkPlacement is the executor's own authority over the advisory table/slot
// choice: the table must exist and fit the party, and the window must be valid,
// bounded and in the future.
func (e *Executor) checkPlacement(ctx context.Context, b Booking) error {
	if !b.Window.Valid() {
		return fmt.Errorf("%w: end must be after start", ErrInvalidBooking)
	}
	if b.Window.Duration() > e.maxDuration {
		return fmt.Errorf("%w: reservation longer than %s", ErrInvalidBooking, e.maxDuration)
	}
	if b.Window.Start.Before(e.now()) {
		return fmt.Errorf("%w: reservation starts in the past", ErrInvalidBooking)
	}
	if b.PartySize <= 0 {
		return fmt.Errorf("%w: party size must be positive", ErrInvalidBooking)
	}
	table, err := e.tables.GetTable(ctx, b.RestaurantID, b.TableID)
	if err != nil {
		return err
	}
	if table.Capacity < b.PartySize {
		return fmt.Errorf("%w: table %s seats %d, party of %d", ErrInvalidBooking, table.TableNumber, table.Capacity, b.PartySize)
	}
	return nil
}

func (e *Executor) fail(op string, cause error, args ...any) error {
	fields := append([]any{"op", op, "error", cause}, args...)
	e.logger.Warn("booking mutation rejected", fields...)
	if errors.Is(cause, ErrMutationFailed) {
		return cause
	}
	return fmt.Errorf("%w: %s: %w", ErrMutationFailed, op, cause)
}

func validateCreate(req CreateRequest) error {
	var missing []string
	if strings.TrimSpace(req.CustomerID) == "" {
		missing = append(missing, "customer")
	}
	if strings.TrimSpace(req.TableID) == "" {
		missing = append(missing, "table")
	}
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if req.PartySize <= 0 {
		missing = append(missing, "party size")
	}
	if req.Window.Start.IsZero() || req.Window.End.IsZero() {
		missing = append(missing, "window")
	}
	if strings.TrimSpace(req.Type) == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidBooking, strings.Join(missing, ", "))
	}
	return nil
}
