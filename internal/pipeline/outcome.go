package pipeline

import (
	"errors"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/conversation"
)

var (
	// ErrInvalidEvent marks an event that cannot be processed at all.
	ErrInvalidEvent = errors.New("pipeline: invalid event")
	// ErrDispatchFailed means the reply was not persisted or not transmitted.
	// A mutation applied before it still stands.
	ErrDispatchFailed = errors.New("pipeline: dispatch failed")
)

func errEvent(reason string) error {
	return errors.Join(ErrInvalidEvent, errors.New(reason))
}

// Outcome is the terminal state of one event.
type Outcome string

const (
	OutcomeInvalid              Outcome = "invalid"
	OutcomeFailed               Outcome = "failed"
	OutcomeDuplicate            Outcome = "duplicate"
	OutcomeRateLimited          Outcome = "rate_limited"
	OutcomeUnsupported          Outcome = "unsupported"
	OutcomeReplied              Outcome = "replied"
	OutcomeMutated              Outcome = "mutated"
	OutcomeInterpretationFailed Outcome = "interpretation_failed"
	OutcomeMutationFailed       Outcome = "mutation_failed"
)

// Silent reports whether the outcome ends without any reply.
func (o Outcome) Silent() bool {
	switch o {
	case OutcomeInvalid, OutcomeFailed, OutcomeDuplicate, OutcomeRateLimited:
		return true
	}
	return false
}

// Result describes how an event was handled.
type Result struct {
	Outcome    Outcome
	CustomerID string
	Decision   *conversation.Decision
	Booking    *bookings.Booking
	Reply      string
	Delivered  bool
	Degraded   []string
	// Err carries the cause for failed outcomes and dispatch failures.
	Err error
}
