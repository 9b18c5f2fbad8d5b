package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

var conversationTracer = otel.Tracer("restaurant.internal.conversation")

// HistoryLimit bounds the chat messages handed to the reasoning step.
const HistoryLimit = 10

// Context slice names recorded in DecisionContext.Degraded.
const (
	SliceTables           = "tables"
	SliceReservations     = "reservations"
	SliceHistory          = "history"
	SliceCustomerBookings = "customer_bookings"
)

// ContextReader is the store surface the assembler reads.
type ContextReader interface {
	ListTables(ctx context.Context, restaurantID string) ([]bookings.Table, error)
	ListConfirmedReservations(ctx context.Context, restaurantID string) ([]bookings.Reservation, error)
	ListRecentMessages(ctx context.Context, restaurantID, customerID string, limit int) ([]chatlog.Message, error)
	ListCustomerBookings(ctx context.Context, restaurantID, customerID string) ([]bookings.Booking, error)
}

// DecisionContext is the bounded set of facts a decision is made from.
type DecisionContext struct {
	Tables           []bookings.Table
	Reservations     []bookings.Reservation
	History          []chatlog.Message
	CustomerBookings []bookings.Booking
	// Degraded names the slices whose read failed and were left empty.
	Degraded []string
}

// IsDegraded reports whether any slice failed to load.
func (d DecisionContext) IsDegraded() bool {
	return len(d.Degraded) > 0
}

// Assembler gathers a DecisionContext with four concurrent reads.
type Assembler struct {
	reader  ContextReader
	timeout time.Duration
	logger  *logging.Logger
}

// NewAssembler builds an assembler. timeout bounds each individual read.
func NewAssembler(reader ContextReader, timeout time.Duration, logger *logging.Logger) *Assembler {
	if reader == nil {
		panic("conversation: context reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Assembler{reader: reader, timeout: timeout, logger: logger}
}

// Assemble never fails: a read that errors leaves its slice empty and is
// recorded in Degraded.
func (a *Assembler) Assemble(ctx context.Context, restaurantID, customerID string) DecisionContext {
	ctx, span := conversationTracer.Start(ctx, "conversation.assemble")
	defer span.End()

	var (
		dc                                          DecisionContext
		tablesErr, reservErr, historyErr, bookedErr error
	)

	// Reads are independent; a failure must not cancel its siblings, so the
	// group is used without a derived context and every func returns nil.
	var g errgroup.Group
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		dc.Tables, tablesErr = a.reader.ListTables(rctx, restaurantID)
		return nil
	})
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		dc.Reservations, reservErr = a.reader.ListConfirmedReservations(rctx, restaurantID)
		return nil
	})
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		var msgs []chatlog.Message
		msgs, historyErr = a.reader.ListRecentMessages(rctx, restaurantID, customerID, HistoryLimit)
		if historyErr == nil {
			dc.History = chatlog.Recent(msgs, HistoryLimit)
		}
		return nil
	})
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		dc.CustomerBookings, bookedErr = a.reader.ListCustomerBookings(rctx, restaurantID, customerID)
		return nil
	})
	_ = g.Wait()

	for _, r := range []struct {
		name string
		err  error
	}{
		{SliceTables, tablesErr},
		{SliceReservations, reservErr},
		{SliceHistory, historyErr},
		{SliceCustomerBookings, bookedErr},
	} {
		if r.err == nil {
			continue
		}
		dc.Degraded = append(dc.Degraded, r.name)
		a.logger.Warn("context read failed, continuing without it",
			"slice", r.name, "customer_id", customerID, "error", r.err)
		span.RecordError(fmt.Errorf("conversation: read %s: %w", r.name, r.err))
	}
	if tablesErr != nil {
		dc.Tables = nil
	}
	if reservErr != nil {
		dc.Reservations = nil
	}
	if bookedErr != nil {
		dc.CustomerBookings = nil
	}

	span.SetAttributes(
		attribute.Int("restaurant.tables", len(dc.Tables)),
		attribute.Int("restaurant.history", len(dc.History)),
		attribute.Bool("restaurant.context_degraded", dc.IsDegraded()),
	)
	return dc
}
