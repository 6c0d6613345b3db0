package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/remip/satgate/internal/btcpay"
	"github.com/remip/satgate/internal/payment"
	"github.com/remip/satgate/internal/validate"
)

// List pagination bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// PaymentHandlers holds dependencies for payment-related HTTP handlers.
type PaymentHandlers struct {
	repo    payment.PaymentRepository
	gateway btcpay.Client
	metrics *payment.Metrics
	logger  *slog.Logger
}

// NewPaymentHandlers creates a new PaymentHandlers instance. metrics may be
// nil when metric collection is disabled (tests).
func NewPaymentHandlers(repo payment.PaymentRepository, gateway btcpay.Client, metrics *payment.Metrics, logger *slog.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		repo:    repo,
		gateway: gateway,
		metrics: metrics,
		logger:  logger,
	}
}

// optString returns a pointer to s, or nil when s is empty, so that empty
// processor fields are omitted from JSON responses.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreatePaymentRequest represents the request body for creating a payment.
type CreatePaymentRequest struct {
	AmountSats  int64           `json:"amountSats"`
	Email       *string         `json:"email,omitempty"`
	Description *string         `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// PaymentAmount is the two-unit amount representation returned on creation.
type PaymentAmount struct {
	Sats int64   `json:"sats"`
	BTC  float64 `json:"btc"`
}

// CreatedPayment is the reduced payment view returned on creation.
type CreatedPayment struct {
	ID           int64         `json:"id"`
	InvoiceID    string        `json:"invoiceId"`
	Email        *string       `json:"email,omitempty"`
	CheckoutLink *string       `json:"checkoutLink,omitempty"`
	Bolt11       *string       `json:"bolt11,omitempty"`
	Amount       PaymentAmount `json:"amount"`
	Status       string        `json:"status"`
}

// CreatePaymentResponse is the response body for a successful creation.
type CreatePaymentResponse struct {
	Success bool           `json:"success"`
	Payment CreatedPayment `json:"payment"`
}

// CreatePayment creates a Lightning invoice on the processor and records
// the resulting payment as pending.
// POST /api/payment
func (h *PaymentHandlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "amountSats requis et > 0")
		return
	}

	if req.AmountSats <= 0 {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "amountSats requis et > 0")
		return
	}

	if req.Email != nil {
		normalized, err := validate.Email(*req.Email)
		if err != nil {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Email invalide")
			return
		}
		req.Email = &normalized
	}

	if err := validate.Metadata(req.Metadata); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Metadata invalide")
		return
	}

	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	invoice, err := h.gateway.CreateInvoice(ctx, req.AmountSats, description, req.Metadata)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncGatewayFailures()
		}
		h.logger.ErrorContext(ctx, "invoice creation failed", "amount_sats", req.AmountSats, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeUpstreamFailure, "Création facture échouée")
		return
	}

	now := time.Now().UTC()
	p := &payment.Payment{
		InvoiceID:    invoice.ID,
		AmountSats:   req.AmountSats,
		AmountBTC:    payment.SatsToBTC(req.AmountSats),
		Email:        req.Email,
		Description:  req.Description,
		Status:       payment.StatusPending,
		CheckoutLink: optString(invoice.CheckoutLink),
		Bolt11:       optString(invoice.Bolt11),
		PaymentHash:  optString(invoice.PaymentHash),
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := h.repo.Create(ctx, p)
	if err != nil {
		if errors.Is(err, payment.ErrDuplicateInvoice) {
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Facture déjà enregistrée")
			return
		}
		h.logger.ErrorContext(ctx, "failed to persist payment", "invoice_id", invoice.ID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorageFailure, "Erreur interne")
		return
	}

	if h.metrics != nil {
		h.metrics.IncPaymentsCreated()
	}
	h.logger.InfoContext(ctx, "payment created",
		"invoice_id", invoice.ID,
		"amount_sats", req.AmountSats,
	)

	writeJSON(w, ctx, http.StatusCreated, CreatePaymentResponse{
		Success: true,
		Payment: CreatedPayment{
			ID:           id,
			InvoiceID:    invoice.ID,
			Email:        req.Email,
			CheckoutLink: p.CheckoutLink,
			Bolt11:       p.Bolt11,
			Amount: PaymentAmount{
				Sats: req.AmountSats,
				BTC:  p.AmountBTC,
			},
			Status: payment.StatusPending,
		},
	})
}

// GetPaymentResponse is the response body for a single payment lookup.
type GetPaymentResponse struct {
	Success bool             `json:"success"`
	Payment *payment.Payment `json:"payment"`
}

// GetPayment returns the full payment record for an invoice id.
// GET /api/payment/{invoiceId}
func (h *PaymentHandlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	invoiceID := r.PathValue("invoiceId")
	if invoiceID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invoice ID requis")
		return
	}

	p, err := h.repo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Paiement non trouvé")
			return
		}
		h.logger.ErrorContext(ctx, "failed to load payment", "invoice_id", invoiceID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorageFailure, "Erreur interne")
		return
	}

	writeJSON(w, ctx, http.StatusOK, GetPaymentResponse{Success: true, Payment: p})
}

// ListedPayment is the reduced payment view returned by the list endpoint.
// Metadata and Lightning payment details are omitted; clients fetch the
// full record by invoice id when they need them.
type ListedPayment struct {
	ID         int64      `json:"id"`
	InvoiceID  string     `json:"invoiceId"`
	AmountSats int64      `json:"amountSats"`
	AmountBTC  float64    `json:"amountBtc"`
	Email      *string    `json:"email,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}

// ListPagination echoes the effective pagination parameters.
type ListPagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListPaymentsResponse is the response body for the list endpoint.
type ListPaymentsResponse struct {
	Success    bool            `json:"success"`
	Count      int             `json:"count"`
	Payments   []ListedPayment `json:"payments"`
	Pagination ListPagination  `json:"pagination"`
}

// ListPayments returns recent payments, newest first.
// GET /api/payments?limit=&offset=&status=
func (h *PaymentHandlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit invalide")
			return
		}
		limit = v
		if limit > MaxListLimit {
			limit = MaxListLimit
		}
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "offset invalide")
			return
		}
		offset = v
	}

	status := r.URL.Query().Get("status")

	payments, err := h.repo.List(ctx, limit, offset, status)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list payments", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorageFailure, "Erreur interne")
		return
	}

	listed := make([]ListedPayment, 0, len(payments))
	for _, p := range payments {
		listed = append(listed, ListedPayment{
			ID:         p.ID,
			InvoiceID:  p.InvoiceID,
			AmountSats: p.AmountSats,
			AmountBTC:  p.AmountBTC,
			Email:      p.Email,
			Status:     p.Status,
			CreatedAt:  p.CreatedAt,
			PaidAt:     p.PaidAt,
		})
	}

	writeJSON(w, ctx, http.StatusOK, ListPaymentsResponse{
		Success:  true,
		Count:    len(listed),
		Payments: listed,
		Pagination: ListPagination{
			Limit:  limit,
			Offset: offset,
		},
	})
}
