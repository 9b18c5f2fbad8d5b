// Package worker moves inbound events from the webhook to the pipeline
// through a queue and runs the consumer pool.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
)

// Queue is the transport between publisher and workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

const kindInboundMessage = "whatsapp.message.v1"

type envelope struct {
	ID    string         `json:"id"`
	Kind  string         `json:"kind"`
	Event pipeline.Event `json:"event"`
}

func encodeEvent(evt pipeline.Event) (envelope, string, error) {
	env := envelope{ID: uuid.NewString(), Kind: kindInboundMessage, Event: evt}
	body, err := json.Marshal(env)
	if err != nil {
		return envelope{}, "", fmt.Errorf("worker: failed to encode event: %w", err)
	}
	return env, string(body), nil
}

func decodeEvent(body string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return envelope{}, fmt.Errorf("worker: failed to decode event: %w", err)
	}
	if env.Kind != kindInboundMessage {
		return envelope{}, fmt.Errorf("worker: unknown job kind %q", env.Kind)
	}
	return env, nil
}
