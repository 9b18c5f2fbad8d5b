package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the booking pipeline.
type PipelineMetrics struct {
	inboundTotal    *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	reasoningTime   *prometheus.HistogramVec
	mutationsTotal  *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	notifyTotal     *prometheus.CounterVec
	degradedContext *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "whatsapp",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhook messages",
		}, []string{"message_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "restaurant",
			Subsystem: "whatsapp",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Inbound events by terminal outcome",
		}, []string{"outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "event_duration_seconds",
			Help:      "End-to-end processing time per event",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"outcome"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Interpreted decisions by action",
		}, []string{"action"}),
		reasoningTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "reasoning_duration_seconds",
			Help:      "Latency of the reasoning call",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"result"}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "mutations_total",
			Help:      "Booking mutations by kind and result",
		}, []string{"kind", "result"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "dispatch_total",
			Help:      "Outbound replies by result",
		}, []string{"result"}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "staff_notify_total",
			Help:      "Staff notifications by result",
		}, []string{"result"}),
		degradedContext: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant",
			Subsystem: "pipeline",
			Name:      "degraded_context_total",
			Help:      "Context slices dropped because their read failed",
		}, []string{"slice"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.webhookLatency,
		m.eventsTotal, m.eventDuration,
		m.decisionsTotal, m.reasoningTime,
		m.mutationsTotal, m.dispatchTotal, m.notifyTotal,
		m.degradedContext,
	)
	return m
}

func (m *PipelineMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *PipelineMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}

// ObserveEvent records the terminal outcome of one event.
func (m *PipelineMetrics) ObserveEvent(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
	m.eventDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *PipelineMetrics) ObserveDecision(action string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(action).Inc()
}

func (m *PipelineMetrics) ObserveReasoning(result string, seconds float64) {
	if m == nil {
		return
	}
	m.reasoningTime.WithLabelValues(result).Observe(seconds)
}

func (m *PipelineMetrics) ObserveMutation(kind, result string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *PipelineMetrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) ObserveNotify(result string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) ObserveDegraded(slices []string) {
	if m == nil {
		return
	}
	for _, s := range slices {
		m.degradedContext.WithLabelValues(s).Inc()
	}
}
