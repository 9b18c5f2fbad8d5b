// Package idempotency decides whether an inbound chat event was already handled.
package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Verdict is the gate's classification of an inbound event.
type Verdict int

const (
	Fresh Verdict = iota
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "fresh"
}

// Lookup is the chat-log surface the gate reads.
type Lookup interface {
	HasExternalID(ctx context.Context, restaurantID, customerID, externalID string) (bool, error)
	LatestTextMatch(ctx context.Context, restaurantID, customerID, text string) (time.Time, bool, error)
}

// Probe describes the event being checked.
type Probe struct {
	RestaurantID string
	CustomerID   string
	ExternalID   string
	Text         string
	Now          time.Time
}

// Gate combines an external-id detector with a same-text window detector.
// Lookup failures classify the event as Fresh.
type Gate struct {
	lookup Lookup
	window time.Duration
	logger *logging.Logger
}

// NewGate builds a gate. A non-positive window disables the text detector.
func NewGate(lookup Lookup, window time.Duration, logger *logging.Logger) *Gate {
	if lookup == nil {
		panic("idempotency: lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{lookup: lookup, window: window, logger: logger}
}

// Check classifies the event as Duplicate or Fresh.
func (g *Gate) Check(ctx context.Context, p Probe) Verdict {
	if id := strings.TrimSpace(p.ExternalID); id != "" {
		seen, err := g.lookup.HasExternalID(ctx, p.RestaurantID, p.CustomerID, id)
		if err != nil {
			g.logger.Warn("idempotency: external id lookup failed, treating as fresh",
				"customer_id", p.CustomerID, "external_id", id, "error", err)
		} else if seen {
			g.logger.Info("duplicate event by external id", "customer_id", p.CustomerID, "external_id", id)
			return Duplicate
		}
	}

	if g.window <= 0 || strings.TrimSpace(p.Text) == "" {
		return Fresh
	}
	at, found, err := g.lookup.LatestTextMatch(ctx, p.RestaurantID, p.CustomerID, p.Text)
	if err != nil {
		g.logger.Warn("idempotency: text lookup failed, treating as fresh", "customer_id", p.CustomerID, "error", err)
		return Fresh
	}
	if !found {
		return Fresh
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	age := now.Sub(at)
	if age < 0 {
		age = -age
	}
	if age <= g.window {
		g.logger.Info("duplicate event by repeated text", "customer_id", p.CustomerID, "age", age)
		return Duplicate
	}
	return Fresh
}
