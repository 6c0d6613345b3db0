package btcpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestServer fakes the two Greenfield endpoints used by CreateInvoice.
func newTestServer(t *testing.T, createStatus int) (*httptest.Server, *[]createInvoiceRequest) {
	t.Helper()
	var seen []createInvoiceRequest

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/stores/store1/invoices", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token key1" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		var req createInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		seen = append(seen, req)

		if createStatus != http.StatusOK {
			w.WriteHeader(createStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":           "inv_abc",
			"checkoutLink": "https://btcpay.example/i/inv_abc",
		})
	})
	mux.HandleFunc("GET /api/v1/stores/store1/invoices/inv_abc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"lightningInvoice": map[string]string{
				"bolt11":      "lnbc1500n1...",
				"paymentHash": "abcd1234",
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

// TestCreateInvoice_Success tests the two-call creation flow and the BTC
// amount formatting on the wire.
func TestCreateInvoice_Success(t *testing.T) {
	srv, seen := newTestServer(t, http.StatusOK)
	client := NewHTTPClient(srv.URL, "store1", "key1", time.Second, nil)

	inv, err := client.CreateInvoice(context.Background(), 150000, "coffee", json.RawMessage(`{"orderId":42}`))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if inv.ID != "inv_abc" {
		t.Errorf("unexpected invoice id: %s", inv.ID)
	}
	if inv.CheckoutLink != "https://btcpay.example/i/inv_abc" {
		t.Errorf("unexpected checkout link: %s", inv.CheckoutLink)
	}
	if inv.Bolt11 != "lnbc1500n1..." {
		t.Errorf("unexpected bolt11: %s", inv.Bolt11)
	}
	if inv.PaymentHash != "abcd1234" {
		t.Errorf("unexpected payment hash: %s", inv.PaymentHash)
	}

	if len(*seen) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(*seen))
	}
	req := (*seen)[0]
	if req.Amount != "0.00150000" {
		t.Errorf("expected BTC amount 0.00150000, got %s", req.Amount)
	}
	if req.Currency != "BTC" {
		t.Errorf("expected currency BTC, got %s", req.Currency)
	}
	if len(req.Checkout.PaymentMethods) != 1 || req.Checkout.PaymentMethods[0] != "BTC-LightningNetwork" {
		t.Errorf("unexpected payment methods: %v", req.Checkout.PaymentMethods)
	}
	if req.Metadata["itemDesc"] != "coffee" {
		t.Errorf("expected itemDesc in metadata, got %v", req.Metadata)
	}
	if req.Metadata["orderId"] != float64(42) {
		t.Errorf("expected orderId forwarded, got %v", req.Metadata)
	}
}

// TestCreateInvoice_UpstreamError tests that any non-success response is
// normalized to ErrInvoiceCreation.
func TestCreateInvoice_UpstreamError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusForbidden)
	client := NewHTTPClient(srv.URL, "store1", "key1", time.Second, nil)

	_, err := client.CreateInvoice(context.Background(), 100, "", nil)
	if err != ErrInvoiceCreation {
		t.Errorf("expected ErrInvoiceCreation, got %v", err)
	}
}

// TestCreateInvoice_TransportError tests the unreachable-server case.
func TestCreateInvoice_TransportError(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "store1", "key1", 200*time.Millisecond, nil)

	_, err := client.CreateInvoice(context.Background(), 100, "", nil)
	if err != ErrInvoiceCreation {
		t.Errorf("expected ErrInvoiceCreation, got %v", err)
	}
}
