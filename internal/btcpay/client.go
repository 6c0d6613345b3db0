package btcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/remip/satgate/internal/payment"
	"github.com/remip/satgate/internal/tracing"
)

// ErrInvoiceCreation is the single normalized error returned for any
// transport or non-success failure of the invoice-creation call. The
// underlying cause is logged, never propagated, so infrastructure details
// do not leak to API clients.
var ErrInvoiceCreation = errors.New("invoice creation failed")

// DefaultTimeout bounds the outbound processor calls.
const DefaultTimeout = 30 * time.Second

// Invoice describes an invoice created by the processor. All fields are
// opaque to this system.
type Invoice struct {
	ID           string
	CheckoutLink string
	Bolt11       string
	PaymentHash  string
}

// Client is an interface for processor operations to enable testing with
// mocks.
type Client interface {
	// CreateInvoice creates a Lightning invoice for the given satoshi
	// amount. No retry is performed; a failure is terminal for the request.
	CreateInvoice(ctx context.Context, amountSats int64, description string, metadata json.RawMessage) (*Invoice, error)
}

// HTTPClient implements Client against the BTCPay Greenfield REST API.
type HTTPClient struct {
	baseURL string
	storeID string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the given BTCPay server and store.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTPClient(baseURL, storeID, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		storeID: storeID,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type invoiceCheckout struct {
	PaymentMethods []string `json:"paymentMethods"`
}

type createInvoiceRequest struct {
	Amount   string                 `json:"amount"`
	Currency string                 `json:"currency"`
	Checkout invoiceCheckout        `json:"checkout"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type createInvoiceResponse struct {
	ID           string `json:"id"`
	CheckoutLink string `json:"checkoutLink"`
}

type lightningInvoice struct {
	Bolt11         string `json:"bolt11"`
	PaymentRequest string `json:"paymentRequest"`
	PaymentHash    string `json:"paymentHash"`
}

type invoiceDetailsResponse struct {
	LightningInvoice *lightningInvoice `json:"lightningInvoice"`
}

// CreateInvoice creates an invoice denominated in BTC (8 fractional digits,
// truncated) restricted to the Lightning payment method, then fetches the
// invoice details to obtain the bolt11 payment request and payment hash.
func (c *HTTPClient) CreateInvoice(ctx context.Context, amountSats int64, description string, metadata json.RawMessage) (retInv *Invoice, retErr error) {
	ctx, endSpan := tracing.StartUpstreamSpan(ctx, "create_invoice")
	defer func() { endSpan(retErr) }()

	meta := map[string]interface{}{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			// Keep the caller's blob opaque; a non-object blob is still
			// forwarded under a single key.
			meta = map[string]interface{}{"data": json.RawMessage(metadata)}
		}
	}
	if description != "" {
		meta["itemDesc"] = description
	}

	reqBody := createInvoiceRequest{
		Amount:   payment.FormatBTC(amountSats),
		Currency: "BTC",
		Checkout: invoiceCheckout{PaymentMethods: []string{"BTC-LightningNetwork"}},
	}
	if len(meta) > 0 {
		reqBody.Metadata = meta
	}

	var created createInvoiceResponse
	url := fmt.Sprintf("%s/api/v1/stores/%s/invoices", c.baseURL, c.storeID)
	if err := c.do(ctx, http.MethodPost, url, &reqBody, &created); err != nil {
		c.logger.ErrorContext(ctx, "invoice creation call failed", "error", err)
		return nil, ErrInvoiceCreation
	}
	if created.ID == "" {
		c.logger.ErrorContext(ctx, "invoice creation returned no id")
		return nil, ErrInvoiceCreation
	}

	// Second fetch: the Lightning payment request is only present on the
	// invoice details, not on the creation response.
	var details invoiceDetailsResponse
	detailsURL := fmt.Sprintf("%s/api/v1/stores/%s/invoices/%s", c.baseURL, c.storeID, created.ID)
	if err := c.do(ctx, http.MethodGet, detailsURL, nil, &details); err != nil {
		c.logger.ErrorContext(ctx, "invoice details call failed", "invoice_id", created.ID, "error", err)
		return nil, ErrInvoiceCreation
	}

	inv := &Invoice{
		ID:           created.ID,
		CheckoutLink: created.CheckoutLink,
	}
	if ln := details.LightningInvoice; ln != nil {
		inv.Bolt11 = ln.Bolt11
		if inv.Bolt11 == "" {
			inv.Bolt11 = ln.PaymentRequest
		}
		inv.PaymentHash = ln.PaymentHash
	}
	return inv, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
