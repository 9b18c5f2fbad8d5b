package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/restaurant-booking-ai/internal/chatlog"
	"github.com/wolfman30/restaurant-booking-ai/internal/notify"
	"github.com/wolfman30/restaurant-booking-ai/internal/observability/metrics"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// MessageLog appends chat messages.
type MessageLog interface {
	AppendMessage(ctx context.Context, msg chatlog.Message) (*chatlog.Message, error)
}

// Sender transmits a text message to a customer.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// StaffNotifier delivers staff alerts.
type StaffNotifier interface {
	NotifyNewMessage(ctx context.Context, alert notify.StaffAlert) error
}

// Reply is an outbound message for one customer.
type Reply struct {
	RestaurantID string
	CustomerID   string
	Phone        string
	Body         string
	// Alert is sent to staff when set, regardless of the reply's fate.
	Alert *notify.StaffAlert
}

// DispatcherConfig bounds the dispatcher's I/O.
type DispatcherConfig struct {
	StoreTimeout  time.Duration
	SendTimeout   time.Duration
	NotifyTimeout time.Duration
}

// Dispatcher records a reply in the chat log, transmits it and alerts staff.
type Dispatcher struct {
	log      MessageLog
	sender   Sender
	notifier StaffNotifier
	cfg      DispatcherConfig
	metrics  *metrics.PipelineMetrics
	now      func() time.Time
	logger   *logging.Logger
}

// NewDispatcher creates a Dispatcher. notifier and m may be nil.
func NewDispatcher(log MessageLog, sender Sender, notifier StaffNotifier, cfg DispatcherConfig, m *metrics.PipelineMetrics, logger *logging.Logger) *Dispatcher {
	if log == nil {
		panic("pipeline: message log required")
	}
	if sender == nil {
		panic("pipeline: sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Dispatcher{
		log:      log,
		sender:   sender,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// Dispatch persists the reply as a staff message and then transmits it. A
// persistence failure aborts transmission. The staff alert is best-effort and
// never changes the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, r Reply) error {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.dispatch", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("restaurant.customer_id", r.CustomerID))

	err := d.deliver(ctx, r)
	if err != nil {
		span.RecordError(err)
		d.metrics.ObserveDispatch("failed")
	} else {
		d.metrics.ObserveDispatch("sent")
	}
	if r.Alert != nil {
		d.alert(ctx, *r.Alert)
	}
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, r Reply) error {
	body := strings.TrimSpace(r.Body)
	if body == "" {
		return fmt.Errorf("%w: empty reply", ErrDispatchFailed)
	}

	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	_, err := d.log.AppendMessage(storeCtx, chatlog.Message{
		RestaurantID: r.RestaurantID,
		CustomerID:   r.CustomerID,
		Sender:       chatlog.SenderStaff,
		Body:         body,
		Timestamp:    d.now().UTC(),
	})
	cancel()
	if err != nil {
		d.logger.Error("reply not persisted; not sending", "customer_id", r.CustomerID, "error", err)
		return fmt.Errorf("%w: persist reply: %w", ErrDispatchFailed, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := d.sender.SendText(sendCtx, r.Phone, body); err != nil {
		d.logger.Error("reply send failed", "customer_id", r.CustomerID, "error", err)
		return fmt.Errorf("%w: send reply: %w", ErrDispatchFailed, err)
	}
	d.logger.Info("reply sent", "customer_id", r.CustomerID, "chars", len(body))
	return nil
}

func (d *Dispatcher) alert(ctx context.Context, alert notify.StaffAlert) {
	if d.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.NotifyTimeout)
	defer cancel()
	if err := d.notifier.NotifyNewMessage(notifyCtx, alert); err != nil {
		d.metrics.ObserveNotify("failed")
		d.logger.Warn("staff notification failed", "customer_id", alert.CustomerID, "error", err)
		return
	}
	d.metrics.ObserveNotify("sent")
}
