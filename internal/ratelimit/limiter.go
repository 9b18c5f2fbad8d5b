// Package ratelimit bounds how many inbound events a customer may trigger per
// fixed window.
package ratelimit

import (
	"context"
	"time"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Limiter decides whether a customer's event is accepted. Allow counts the
// event only when it is accepted.
type Limiter interface {
	Allow(ctx context.Context, customerID string, now time.Time) (bool, error)
}

// Policy is the fixed-window budget.
type Policy struct {
	Max    int
	Window time.Duration
}

func (p Policy) normalized() Policy {
	if p.Max <= 0 {
		p.Max = 3
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

// FailOpen wraps a limiter so backend errors admit the event with a warning.
type FailOpen struct {
	next   Limiter
	logger *logging.Logger
}

// NewFailOpen wraps next.
func NewFailOpen(next Limiter, logger *logging.Logger) *FailOpen {
	if next == nil {
		panic("ratelimit: limiter required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailOpen{next: next, logger: logger}
}

// Allow implements Limiter.
func (f *FailOpen) Allow(ctx context.Context, customerID string, now time.Time) (bool, error) {
	ok, err := f.next.Allow(ctx, customerID, now)
	if err != nil {
		f.logger.Warn("ratelimit: backend error, allowing event", "customer_id", customerID, "error", err)
		return true, nil
	}
	return ok, nil
}
