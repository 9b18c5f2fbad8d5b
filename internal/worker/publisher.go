package worker

import (
	"context"
	"fmt"

	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Publisher enqueues inbound events for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Publish enqueues one inbound event.
func (p *Publisher) Publish(ctx context.Context, evt pipeline.Event) error {
	env, body, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("worker: failed to enqueue event: %w", err)
	}
	p.logger.Debug("inbound event enqueued", "job_id", env.ID, "external_id", evt.ExternalID, "type", evt.Type)
	return nil
}
