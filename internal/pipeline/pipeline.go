// Package pipeline runs one inbound chat event through deduplication, rate
// limiting, context assembly, interpretation, booking mutation and reply.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
	"github.com/wolfman30/restaurant-booking-ai/internal/conversation"
	"github.com/wolfman30/restaurant-booking-ai/internal/idempotency"
	"github.com/wolfman30/restaurant-booking-ai/internal/media"
	"github.com/wolfman30/restaurant-booking-ai/internal/notify"
	"github.com/wolfman30/restaurant-booking-ai/internal/observability/metrics"
	"github.com/wolfman30/restaurant-booking-ai/internal/ratelimit"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

var pipelineTracer = otel.Tracer("restaurant.internal.pipeline")

const (
	DefaultFallbackReply       = "Sorry, I'm having trouble understanding that right now. Could you please send your message again in a moment?"
	DefaultMutationFailedReply = "Sorry, I couldn't complete that booking change. The table may no longer be available at that time. Could you suggest another time or table?"
)

// CustomerStore resolves customers by phone number.
type CustomerStore interface {
	UpsertCustomer(ctx context.Context, phone, name string) (*bookings.Customer, error)
}

// MediaIngestor fetches and archives inbound media.
type MediaIngestor interface {
	Ingest(ctx context.Context, restaurantID, mediaID string) (media.Object, error)
}

// Deps are the collaborators of a Pipeline. Media and Metrics are optional.
type Deps struct {
	Customers   CustomerStore
	Messages    MessageLog
	Gate        *idempotency.Gate
	Limiter     ratelimit.Limiter
	Assembler   *conversation.Assembler
	Interpreter *conversation.Interpreter
	Executor    conversation.BookingExecutor
	Dispatcher  *Dispatcher
	Media       MediaIngestor
	Metrics     *metrics.PipelineMetrics
}

// Config holds the fixed replies and timeouts of a Pipeline.
type Config struct {
	FallbackReply       string
	MutationFailedReply string
	// UnsupportedReply is sent for unsupported message types; empty drops them silently.
	UnsupportedReply string
	StoreTimeout     time.Duration
	MutationTimeout  time.Duration
}

// Pipeline processes inbound events. It is safe for concurrent use; events
// from different customers run independently.
type Pipeline struct {
	deps   Deps
	cfg    Config
	now    func() time.Time
	logger *logging.Logger
}

// New wires a Pipeline.
func New(deps Deps, cfg Config, logger *logging.Logger) *Pipeline {
	switch {
	case deps.Customers == nil:
		panic("pipeline: customer store required")
	case deps.Messages == nil:
		panic("pipeline: message log required")
	case deps.Gate == nil:
		panic("pipeline: idempotency gate required")
	case deps.Limiter == nil:
		panic("pipeline: rate limiter required")
	case deps.Assembler == nil:
		panic("pipeline: context assembler required")
	case deps.Interpreter == nil:
		panic("pipeline: interpreter required")
	case deps.Executor == nil:
		panic("pipeline: booking executor required")
	case deps.Dispatcher == nil:
		panic("pipeline: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.FallbackReply) == "" {
		cfg.FallbackReply = DefaultFallbackReply
	}
	if strings.TrimSpace(cfg.MutationFailedReply) == "" {
		cfg.MutationFailedReply = DefaultMutationFailedReply
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.MutationTimeout <= 0 {
		cfg.MutationTimeout = 10 * time.Second
	}
	return &Pipeline{deps: deps, cfg: cfg, now: time.Now, logger: logger}
}

// Process handles one event to completion. It never panics on event data and
// never returns an error: every failure resolves to a fallback reply or silence,
// reported through Result.
func (p *Pipeline) Process(ctx context.Context, evt Event) Result {
	started := p.now()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("restaurant.restaurant_id", evt.RestaurantID),
		attribute.String("restaurant.message_type", string(evt.Type)),
	)

	res := p.process(ctx, evt)

	span.SetAttributes(attribute.String("restaurant.outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	p.deps.Metrics.ObserveEvent(string(res.Outcome), p.now().Sub(started).Seconds())
	p.logger.Info("event processed",
		"restaurant_id", evt.RestaurantID,
		"customer_id", res.CustomerID,
		"external_id", evt.ExternalID,
		"outcome", res.Outcome,
		"delivered", res.Delivered,
		"degraded", res.Degraded,
	)
	return res
}

func (p *Pipeline) process(ctx context.Context, evt Event) Result {
	if err := evt.Validate(); err != nil {
		p.logger.Warn("dropping invalid event", "external_id", evt.ExternalID, "error", err)
		return Result{Outcome: OutcomeInvalid, Err: err}
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = p.now()
	}
	evt.Timestamp = evt.Timestamp.UTC()

	storeCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	customer, err := p.deps.Customers.UpsertCustomer(storeCtx, evt.Phone, evt.DisplayName)
	cancel()
	if err != nil {
		p.logger.Error("customer lookup failed", "restaurant_id", evt.RestaurantID, "error", err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	res := Result{CustomerID: customer.ID}

	probe := idempotency.Probe{
		RestaurantID: evt.RestaurantID,
		CustomerID:   customer.ID,
		ExternalID:   evt.ExternalID,
		Now:          evt.Timestamp,
	}
	if evt.Type == MessageText {
		probe.Text = evt.Text
	}
	gateCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	verdict := p.deps.Gate.Check(gateCtx, probe)
	cancel()
	if verdict == idempotency.Duplicate {
		res.Outcome = OutcomeDuplicate
		return res
	}

	limitCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	allowed, err := p.deps.Limiter.Allow(limitCtx, customer.ID, p.now())
	cancel()
	if err != nil {
		p.logger.Warn("rate limiter error; admitting event", "customer_id", customer.ID, "error", err)
		allowed = true
	}
	if !allowed {
		p.logger.Info("rate limited", "customer_id", customer.ID)
		res.Outcome = OutcomeRateLimited
		return res
	}

	if evt.Type == MessageUnsupported {
		return p.unsupported(ctx, evt, res)
	}

	body, image := p.inboundBody(ctx, evt)
	storeCtx, cancel = context.WithTimeout(ctx, p.cfg.StoreTimeout)
	_, err = p.deps.Messages.AppendMessage(storeCtx, chatlog.Message{
		RestaurantID: evt.RestaurantID,
		CustomerID:   customer.ID,
		Sender:       chatlog.SenderCustomer,
		Body:         body,
		ExternalID:   evt.ExternalID,
		Timestamp:    evt.Timestamp,
	})
	cancel()
	if errors.Is(err, chatlog.ErrDuplicateMessage) {
		// A concurrent delivery of the same message won the insert.
		res.Outcome = OutcomeDuplicate
		return res
	}
	if err != nil {
		p.logger.Warn("inbound message not persisted", "customer_id", customer.ID, "error", err)
	}

	dctx := p.deps.Assembler.Assemble(ctx, evt.RestaurantID, customer.ID)
	res.Degraded = dctx.Degraded
	p.deps.Metrics.ObserveDegraded(dctx.Degraded)

	name := customer.Name
	if name == "" {
		name = evt.DisplayName
	}
	text := evt.Text
	if evt.Type == MessageImage {
		text = evt.Caption
	}

	reasoningStart := p.now()
	decision, err := p.deps.Interpreter.Interpret(ctx, conversation.Input{
		RestaurantID: evt.RestaurantID,
		CustomerID:   customer.ID,
		CustomerName: name,
		Text:         text,
		Image:        image,
		Now:          p.now(),
		Context:      dctx,
	})
	elapsed := p.now().Sub(reasoningStart).Seconds()
	if err != nil {
		p.deps.Metrics.ObserveReasoning("failed", elapsed)
		res.Outcome = OutcomeInterpretationFailed
		res.Err = err
		res.Reply = p.cfg.FallbackReply
		return p.reply(ctx, evt, customer, res, "")
	}
	p.deps.Metrics.ObserveReasoning("ok", elapsed)
	p.deps.Metrics.ObserveDecision(string(decision.Action))
	res.Decision = &decision

	if decision.CustomerName != "" && customer.Name == "" {
		p.rememberName(ctx, evt.Phone, decision.CustomerName)
	}

	res.Outcome = OutcomeReplied
	res.Reply = decision.Reply
	if decision.Mutation != nil {
		booking, err := p.applyMutation(ctx, decision.Mutation)
		if err != nil {
			res.Outcome = OutcomeMutationFailed
			res.Err = err
			res.Reply = p.cfg.MutationFailedReply
		} else {
			res.Outcome = OutcomeMutated
			res.Booking = booking
		}
	}
	return p.reply(ctx, evt, customer, res, string(decision.Action))
}

// applyMutation runs the gated mutation detached from the caller's
// cancellation so a booking is never half-observed by a cancelled worker.
func (p *Pipeline) applyMutation(ctx context.Context, m conversation.Mutation) (*bookings.Booking, error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.MutationTimeout)
	defer cancel()
	booking, err := m.Apply(mctx, p.deps.Executor)
	if err != nil {
		p.deps.Metrics.ObserveMutation(m.Kind(), "failed")
		return nil, err
	}
	p.deps.Metrics.ObserveMutation(m.Kind(), "ok")
	return booking, nil
}

func (p *Pipeline) reply(ctx context.Context, evt Event, customer *bookings.Customer, res Result, action string) Result {
	guard := conversation.ScanReply(res.Reply)
	if guard.Leaked {
		p.logger.Warn("reply failed output guard", "customer_id", customer.ID, "reasons", guard.Reasons)
		res.Reply = guard.Sanitized
		if strings.TrimSpace(res.Reply) == "" {
			res.Reply = p.cfg.FallbackReply
		}
	}

	alert := &notify.StaffAlert{
		RestaurantID: evt.RestaurantID,
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		Phone:        evt.Phone,
		Preview:      evt.Preview(),
		Action:       action,
	}
	if alert.CustomerName == "" {
		alert.CustomerName = evt.DisplayName
	}
	if res.Booking != nil {
		alert.BookingID = res.Booking.ID
	}

	err := p.deps.Dispatcher.Dispatch(ctx, Reply{
		RestaurantID: evt.RestaurantID,
		CustomerID:   customer.ID,
		Phone:        evt.Phone,
		Body:         res.Reply,
		Alert:        alert,
	})
	if err != nil {
		// The mutation, if any, stands.
		res.Err = errors.Join(res.Err, err)
		return res
	}
	res.Delivered = true
	return res
}

func (p *Pipeline) unsupported(ctx context.Context, evt Event, res Result) Result {
	res.Outcome = OutcomeUnsupported
	if strings.TrimSpace(p.cfg.UnsupportedReply) == "" {
		p.logger.Info("dropping unsupported message", "customer_id", res.CustomerID, "raw_type", evt.RawType)
		return res
	}
	res.Reply = p.cfg.UnsupportedReply
	err := p.deps.Dispatcher.Dispatch(ctx, Reply{
		RestaurantID: evt.RestaurantID,
		CustomerID:   res.CustomerID,
		Phone:        evt.Phone,
		Body:         res.Reply,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Delivered = true
	return res
}

// inboundBody builds the chat-log body and, for images, the inline image.
// A media failure degrades to a reference without bytes.
func (p *Pipeline) inboundBody(ctx context.Context, evt Event) (string, *conversation.Image) {
	if evt.Type != MessageImage {
		return evt.Text, nil
	}
	key := "whatsapp/" + evt.MediaID
	if p.deps.Media == nil {
		return chatlog.MediaBody(key, evt.Caption), nil
	}
	mediaCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	obj, err := p.deps.Media.Ingest(mediaCtx, evt.RestaurantID, evt.MediaID)
	if err != nil {
		p.logger.Warn("media unavailable; continuing without image", "media_id", evt.MediaID, "error", err)
		return chatlog.MediaBody(key, evt.Caption), nil
	}
	return chatlog.MediaBody(obj.Key, evt.Caption), &conversation.Image{MIMEType: obj.MIMEType, Data: obj.Data}
}

func (p *Pipeline) rememberName(ctx context.Context, phone, name string) {
	storeCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	if _, err := p.deps.Customers.UpsertCustomer(storeCtx, phone, name); err != nil {
		p.logger.Warn("failed to record customer name", "error", err)
	}
}
