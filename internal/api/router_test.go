package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/remip/satgate/internal/payment"
)

func newTestRouter(t *testing.T) (*http.ServeMux, *payment.InMemoryPaymentRepository) {
	t.Helper()
	repo := payment.NewInMemoryPaymentRepository()
	logger := testLogger()

	return NewRouter(RouterConfig{
		Payments:        NewPaymentHandlers(repo, defaultFakeGateway(), nil, logger),
		Webhooks:        NewWebhookHandlers(repo, testWebhookSecret, payment.Rules{LockTerminal: true}, nil, logger),
		Health:          NewHealthHandlers(HealthHandlersConfig{Logger: logger}),
		MetricsRegistry: prometheus.NewRegistry(),
	}), repo
}

func TestRouter_UnknownRoute404(t *testing.T) {
	router, _ := newTestRouter(t)

	paths := []string{"/", "/api", "/api/unknown", "/webhook"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", rec.Code)
			}
			assertErrorBody(t, rec, "Route non trouvée")
		})
	}
}

func TestRouter_DispatchesPaymentRoutes(t *testing.T) {
	router, repo := newTestRouter(t)

	// Create through the router.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(`{"amountSats":500}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/payment: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Path value binding for the detail route.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/inv_abc123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/payment/{invoiceId}: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/payments: expected 200, got %d", rec.Code)
	}

	seedPayment(t, repo, "inv_route_wh", 100, payment.StatusPending)
	body := `{"type":"InvoiceSettled","invoiceId":"inv_route_wh"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhookRequest(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /webhook/btcpay: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_MethodRouting(t *testing.T) {
	router, _ := newTestRouter(t)

	// Wrong methods fall outside the registered patterns.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/payments", nil))
	if rec.Code == http.StatusOK {
		t.Error("DELETE /api/payments should not reach the list handler")
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: expected 200, got %d", rec.Code)
	}
}

func TestRouter_CreateLimiterWraps(t *testing.T) {
	repo := payment.NewInMemoryPaymentRepository()
	logger := testLogger()

	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	router := NewRouter(RouterConfig{
		Payments: NewPaymentHandlers(repo, defaultFakeGateway(), nil, logger),
		Webhooks: NewWebhookHandlers(repo, testWebhookSecret, payment.Rules{LockTerminal: true}, nil, logger),
		Health:   NewHealthHandlers(HealthHandlersConfig{Logger: logger}),
		CreateLimiter: func(next http.Handler) http.Handler {
			return limited
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(`{"amountSats":500}`)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected create limiter to intercept, got %d", rec.Code)
	}

	// Other routes are untouched.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/payments: expected 200, got %d", rec.Code)
	}
}
