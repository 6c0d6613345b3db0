package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/remip/satgate/internal/btcpay"
	"github.com/remip/satgate/internal/payment"
)

// fakeGateway implements btcpay.Client for handler tests.
type fakeGateway struct {
	invoice    *btcpay.Invoice
	err        error
	lastAmount int64
	lastDesc   string
	calls      int
}

func (f *fakeGateway) CreateInvoice(_ context.Context, amountSats int64, description string, _ json.RawMessage) (*btcpay.Invoice, error) {
	f.calls++
	f.lastAmount = amountSats
	f.lastDesc = description
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestPaymentHandlers(gateway btcpay.Client) (*PaymentHandlers, *payment.InMemoryPaymentRepository) {
	repo := payment.NewInMemoryPaymentRepository()
	return NewPaymentHandlers(repo, gateway, nil, testLogger()), repo
}

func defaultFakeGateway() *fakeGateway {
	return &fakeGateway{
		invoice: &btcpay.Invoice{
			ID:           "inv_abc123",
			CheckoutLink: "https://btcpay.example.com/i/inv_abc123",
			Bolt11:       "lnbc1500n1pjtest",
			PaymentHash:  "a1b2c3",
		},
	}
}

// seedPayment inserts a payment directly into the repository.
func seedPayment(t *testing.T, repo payment.PaymentRepository, invoiceID string, sats int64, status string) *payment.Payment {
	t.Helper()
	now := time.Now().UTC()
	p := &payment.Payment{
		InvoiceID:  invoiceID,
		AmountSats: sats,
		AmountBTC:  payment.SatsToBTC(sats),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := repo.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("failed to seed payment %s: %v", invoiceID, err)
	}
	p.ID = id
	return p
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func assertErrorBody(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body ErrorResponse
	decodeBody(t, rec, &body)
	if body.Error != want {
		t.Errorf("expected error %q, got %q", want, body.Error)
	}
}

func TestCreatePayment_Success(t *testing.T) {
	gateway := defaultFakeGateway()
	handlers, repo := newTestPaymentHandlers(gateway)

	body := `{"amountSats":1500,"email":"sat@example.com","description":"coffee","metadata":{"orderId":"42"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handlers.CreatePayment(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CreatePaymentResponse
	decodeBody(t, rec, &resp)
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Payment.InvoiceID != "inv_abc123" {
		t.Errorf("unexpected invoice id %q", resp.Payment.InvoiceID)
	}
	if resp.Payment.Status != payment.StatusPending {
		t.Errorf("expected pending status, got %q", resp.Payment.Status)
	}
	if resp.Payment.Amount.Sats != 1500 {
		t.Errorf("expected 1500 sats, got %d", resp.Payment.Amount.Sats)
	}
	if resp.Payment.Amount.BTC != 0.00001500 {
		t.Errorf("expected 0.000015 BTC, got %v", resp.Payment.Amount.BTC)
	}
	if resp.Payment.Bolt11 == nil || *resp.Payment.Bolt11 != "lnbc1500n1pjtest" {
		t.Errorf("unexpected bolt11: %v", resp.Payment.Bolt11)
	}
	if gateway.lastAmount != 1500 || gateway.lastDesc != "coffee" {
		t.Errorf("gateway received amount=%d desc=%q", gateway.lastAmount, gateway.lastDesc)
	}

	stored, err := repo.GetByInvoiceID(context.Background(), "inv_abc123")
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if stored.Status != payment.StatusPending {
		t.Errorf("stored status %q, want pending", stored.Status)
	}
	if string(stored.Metadata) != `{"orderId":"42"}` {
		t.Errorf("metadata not stored verbatim: %s", stored.Metadata)
	}
}

func TestCreatePayment_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{}`},
		{"zero amount", `{"amountSats":0}`},
		{"negative amount", `{"amountSats":-10}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := defaultFakeGateway()
			handlers, _ := newTestPaymentHandlers(gateway)

			req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handlers.CreatePayment(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			assertErrorBody(t, rec, "amountSats requis et > 0")
			if gateway.calls != 0 {
				t.Error("gateway must not be called on validation failure")
			}
		})
	}
}

func TestCreatePayment_InvalidEmail(t *testing.T) {
	gateway := defaultFakeGateway()
	handlers, _ := newTestPaymentHandlers(gateway)

	req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(`{"amountSats":100,"email":"not-an-email"}`))
	rec := httptest.NewRecorder()
	handlers.CreatePayment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertErrorBody(t, rec, "Email invalide")
	if gateway.calls != 0 {
		t.Error("gateway must not be called on validation failure")
	}
}

func TestCreatePayment_EmailNormalized(t *testing.T) {
	gateway := defaultFakeGateway()
	handlers, repo := newTestPaymentHandlers(gateway)

	req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(`{"amountSats":100,"email":"  Sat@Example.COM "}`))
	rec := httptest.NewRecorder()
	handlers.CreatePayment(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, err := repo.GetByInvoiceID(context.Background(), "inv_abc123")
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if stored.Email == nil || *stored.Email != "sat@example.com" {
		t.Errorf("expected normalized email, got %v", stored.Email)
	}
}

func TestCreatePayment_GatewayFailure(t *testing.T) {
	gateway := &fakeGateway{err: btcpay.ErrInvoiceCreation}
	handlers, repo := newTestPaymentHandlers(gateway)

	req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(`{"amountSats":100}`))
	rec := httptest.NewRecorder()
	handlers.CreatePayment(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	assertErrorBody(t, rec, "Création facture échouée")

	if payments, _ := repo.List(context.Background(), 10, 0, ""); len(payments) != 0 {
		t.Error("no payment should be recorded when invoice creation fails")
	}
}

func TestCreatePayment_DuplicateInvoice(t *testing.T) {
	gateway := defaultFakeGateway()
	handlers, _ := newTestPaymentHandlers(gateway)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/payment", strings.NewReader(`{"amountSats":100}`))
		rec := httptest.NewRecorder()
		handlers.CreatePayment(rec, req)

		if i == 0 && rec.Code != http.StatusCreated {
			t.Fatalf("first create: expected 201, got %d", rec.Code)
		}
		if i == 1 && rec.Code != http.StatusConflict {
			t.Fatalf("second create with same invoice id: expected 409, got %d", rec.Code)
		}
	}
}

func TestGetPayment_Success(t *testing.T) {
	gateway := defaultFakeGateway()
	handlers, repo := newTestPaymentHandlers(gateway)

	seedPayment(t, repo, "inv_get1", 2100, payment.StatusPending)

	req := httptest.NewRequest(http.MethodGet, "/api/payment/inv_get1", nil)
	req.SetPathValue("invoiceId", "inv_get1")
	rec := httptest.NewRecorder()
	handlers.GetPayment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp GetPaymentResponse
	decodeBody(t, rec, &resp)
	if resp.Payment == nil || resp.Payment.InvoiceID != "inv_get1" {
		t.Fatalf("unexpected payment: %+v", resp.Payment)
	}
	if resp.Payment.AmountSats != 2100 {
		t.Errorf("expected 2100 sats, got %d", resp.Payment.AmountSats)
	}
}

func TestGetPayment_NotFound(t *testing.T) {
	handlers, _ := newTestPaymentHandlers(defaultFakeGateway())

	req := httptest.NewRequest(http.MethodGet, "/api/payment/inv_missing", nil)
	req.SetPathValue("invoiceId", "inv_missing")
	rec := httptest.NewRecorder()
	handlers.GetPayment(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	assertErrorBody(t, rec, "Paiement non trouvé")
}

func TestGetPayment_BlankID(t *testing.T) {
	handlers, _ := newTestPaymentHandlers(defaultFakeGateway())

	req := httptest.NewRequest(http.MethodGet, "/api/payment/", nil)
	rec := httptest.NewRecorder()
	handlers.GetPayment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertErrorBody(t, rec, "Invoice ID requis")
}

func TestListPayments_DefaultsAndProjection(t *testing.T) {
	handlers, repo := newTestPaymentHandlers(defaultFakeGateway())

	seedPayment(t, repo, "inv_l1", 100, payment.StatusPending)
	seedPayment(t, repo, "inv_l2", 200, payment.StatusPaid)

	req := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	rec := httptest.NewRecorder()
	handlers.ListPayments(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ListPaymentsResponse
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || len(resp.Payments) != 2 {
		t.Fatalf("expected 2 payments, got count=%d len=%d", resp.Count, len(resp.Payments))
	}
	if resp.Pagination.Limit != DefaultListLimit || resp.Pagination.Offset != 0 {
		t.Errorf("unexpected pagination: %+v", resp.Pagination)
	}
	// Newest first.
	if resp.Payments[0].InvoiceID != "inv_l2" {
		t.Errorf("expected inv_l2 first, got %q", resp.Payments[0].InvoiceID)
	}

	// The list projection omits metadata and Lightning details.
	var raw struct {
		Payments []map[string]any `json:"payments"`
	}
	decodeBody(t, rec, &raw)
	for _, p := range raw.Payments {
		if _, ok := p["metadata"]; ok {
			t.Error("list projection must not include metadata")
		}
		if _, ok := p["bolt11"]; ok {
			t.Error("list projection must not include bolt11")
		}
	}
}

func TestListPayments_LimitClampAndOffset(t *testing.T) {
	handlers, repo := newTestPaymentHandlers(defaultFakeGateway())
	for i := 0; i < 5; i++ {
		seedPayment(t, repo, fmt.Sprintf("inv_c%d", i), 100, payment.StatusPending)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/payments?limit=1000&offset=2", nil)
	rec := httptest.NewRecorder()
	handlers.ListPayments(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ListPaymentsResponse
	decodeBody(t, rec, &resp)
	if resp.Pagination.Limit != MaxListLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxListLimit, resp.Pagination.Limit)
	}
	if resp.Pagination.Offset != 2 {
		t.Errorf("expected offset 2, got %d", resp.Pagination.Offset)
	}
	if resp.Count != 3 {
		t.Errorf("expected 3 payments after offset, got %d", resp.Count)
	}
}

func TestListPayments_StatusFilter(t *testing.T) {
	handlers, repo := newTestPaymentHandlers(defaultFakeGateway())
	seedPayment(t, repo, "inv_f1", 100, payment.StatusPending)
	seedPayment(t, repo, "inv_f2", 200, payment.StatusPaid)
	seedPayment(t, repo, "inv_f3", 300, payment.StatusPaid)

	req := httptest.NewRequest(http.MethodGet, "/api/payments?status=paid", nil)
	rec := httptest.NewRecorder()
	handlers.ListPayments(rec, req)

	var resp ListPaymentsResponse
	decodeBody(t, rec, &resp)
	if resp.Count != 2 {
		t.Fatalf("expected 2 paid payments, got %d", resp.Count)
	}
	for _, p := range resp.Payments {
		if p.Status != payment.StatusPaid {
			t.Errorf("expected paid, got %q", p.Status)
		}
	}
}

func TestListPayments_InvalidParams(t *testing.T) {
	handlers, _ := newTestPaymentHandlers(defaultFakeGateway())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"limit not a number", "?limit=abc", "limit invalide"},
		{"limit zero", "?limit=0", "limit invalide"},
		{"negative offset", "?offset=-1", "offset invalide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/payments"+tt.query, nil)
			rec := httptest.NewRecorder()
			handlers.ListPayments(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			assertErrorBody(t, rec, tt.want)
		})
	}
}
