package payment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricPaymentsCreated = "payments_created_total"
	MetricWebhookEvents   = "webhook_events_total"
	MetricGatewayFailures = "invoice_gateway_failures_total"
)

// Webhook event outcomes recorded in metrics.
const (
	OutcomeApplied = "applied"
	OutcomeNoOp    = "noop"
	OutcomeIgnored = "ignored"
)

// Metrics contains Prometheus metrics for payment processing.
// All operations are thread-safe.
type Metrics struct {
	paymentsCreated prometheus.Counter
	webhookEvents   *prometheus.CounterVec
	gatewayFailures prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		paymentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPaymentsCreated,
			Help: "Total number of payments created",
		}),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricWebhookEvents,
				Help: "Total number of webhook events received, by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		gatewayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricGatewayFailures,
			Help: "Total number of failed invoice creation calls to the processor",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.paymentsCreated,
		m.webhookEvents,
		m.gatewayFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncPaymentsCreated increments the created payments counter.
func (m *Metrics) IncPaymentsCreated() {
	m.paymentsCreated.Inc()
}

// IncWebhookEvent records a processed webhook event.
func (m *Metrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncGatewayFailures increments the gateway failure counter.
func (m *Metrics) IncGatewayFailures() {
	m.gatewayFailures.Inc()
}
