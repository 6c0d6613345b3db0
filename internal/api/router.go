package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig bundles the handlers mounted on the API mux.
type RouterConfig struct {
	Payments *PaymentHandlers
	Webhooks *WebhookHandlers
	Health   *HealthHandlers

	// MetricsRegistry, when set, exposes GET /metrics backed by this registry.
	MetricsRegistry *prometheus.Registry

	// CreateLimiter, when set, wraps POST /api/payment with an
	// endpoint-level rate limit on top of the global one.
	CreateLimiter func(http.Handler) http.Handler

	// WebhookLimiter, when set, wraps POST /webhook/btcpay.
	WebhookLimiter func(http.Handler) http.Handler
}

// NewRouter builds the service mux. Any path not matched by a registered
// route falls through to a JSON 404.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	var createHandler http.Handler = http.HandlerFunc(cfg.Payments.CreatePayment)
	if cfg.CreateLimiter != nil {
		createHandler = cfg.CreateLimiter(createHandler)
	}
	mux.Handle("POST /api/payment", createHandler)
	mux.HandleFunc("GET /api/payment/{invoiceId}", cfg.Payments.GetPayment)
	mux.HandleFunc("GET /api/payments", cfg.Payments.ListPayments)

	var webhookHandler http.Handler = http.HandlerFunc(cfg.Webhooks.HandleBTCPayWebhook)
	if cfg.WebhookLimiter != nil {
		webhookHandler = cfg.WebhookLimiter(webhookHandler)
	}
	mux.Handle("POST /webhook/btcpay", webhookHandler)
	mux.HandleFunc("GET /health", cfg.Health.Health)

	if cfg.MetricsRegistry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Route non trouvée")
	})

	return mux
}
