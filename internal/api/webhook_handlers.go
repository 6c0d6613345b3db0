package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/remip/satgate/internal/btcpay"
	"github.com/remip/satgate/internal/payment"
)

// maxWebhookBody caps the webhook payload size. Processor events are a few
// hundred bytes; anything larger is rejected before signature verification.
const maxWebhookBody = 1 << 20

// WebhookHandlers holds dependencies for processor webhook handling.
type WebhookHandlers struct {
	repo    payment.PaymentRepository
	secret  string
	rules   payment.Rules
	metrics *payment.Metrics
	logger  *slog.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance.
func NewWebhookHandlers(repo payment.PaymentRepository, secret string, rules payment.Rules, metrics *payment.Metrics, logger *slog.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		repo:    repo,
		secret:  secret,
		rules:   rules,
		metrics: metrics,
		logger:  logger,
	}
}

// webhookEvent is the subset of the processor's event payload this service
// acts on. Unknown fields are ignored.
type webhookEvent struct {
	Type      string `json:"type"`
	InvoiceID string `json:"invoiceId"`
}

// WebhookIgnoredResponse acknowledges an event type this service does not act on.
type WebhookIgnoredResponse struct {
	Ignored bool `json:"ignored"`
}

// WebhookAppliedResponse acknowledges a processed event with the resulting status.
type WebhookAppliedResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// HandleBTCPayWebhook authenticates and applies a processor event.
// POST /webhook/btcpay
//
// The signature is verified over the raw body before any JSON parsing.
// Recognized events move the payment through its lifecycle; replays and
// unknown event types are acknowledged with 200 so the processor does not
// retry them.
func (h *WebhookHandlers) HandleBTCPayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Payload invalide")
		return
	}

	if !btcpay.VerifySignature(body, r.Header.Get(btcpay.SignatureHeader), h.secret) {
		h.logger.WarnContext(ctx, "webhook signature verification failed")
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeSignatureInvalid, "Signature invalide")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Payload invalide")
		return
	}
	if event.InvoiceID == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invoice ID requis")
		return
	}

	p, err := h.repo.GetByInvoiceID(ctx, event.InvoiceID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			h.logger.WarnContext(ctx, "webhook for unknown invoice", "invoice_id", event.InvoiceID, "event_type", event.Type)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Paiement non trouvé")
			return
		}
		h.logger.ErrorContext(ctx, "failed to load payment for webhook", "invoice_id", event.InvoiceID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorageFailure, "Erreur interne")
		return
	}

	decision := h.rules.Decide(p.Status, event.Type, time.Now().UTC())

	if decision.Ignored {
		h.countEvent(event.Type, payment.OutcomeIgnored)
		h.logger.InfoContext(ctx, "webhook event ignored", "invoice_id", event.InvoiceID, "event_type", event.Type)
		writeJSON(w, ctx, http.StatusOK, WebhookIgnoredResponse{Ignored: true})
		return
	}

	if decision.NoOp {
		h.countEvent(event.Type, payment.OutcomeNoOp)
		h.logger.InfoContext(ctx, "webhook event replay, no write",
			"invoice_id", event.InvoiceID,
			"event_type", event.Type,
			"status", p.Status,
		)
		writeJSON(w, ctx, http.StatusOK, WebhookAppliedResponse{Success: true, Status: decision.NewStatus})
		return
	}

	if err := h.repo.UpdateStatus(ctx, event.InvoiceID, decision.NewStatus, decision.PaidAt); err != nil {
		h.logger.ErrorContext(ctx, "failed to update payment status",
			"invoice_id", event.InvoiceID,
			"new_status", decision.NewStatus,
			"error", err,
		)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorageFailure, "Erreur interne")
		return
	}

	h.countEvent(event.Type, payment.OutcomeApplied)
	h.logger.InfoContext(ctx, "payment status updated",
		"invoice_id", event.InvoiceID,
		"event_type", event.Type,
		"old_status", p.Status,
		"new_status", decision.NewStatus,
	)
	writeJSON(w, ctx, http.StatusOK, WebhookAppliedResponse{Success: true, Status: decision.NewStatus})
}

func (h *WebhookHandlers) countEvent(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.IncWebhookEvent(eventType, outcome)
	}
}
