// Package payment provides the payment record model, lifecycle rules and
// persistence for invoices tracked through the external processor.
package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Payment statuses. The pending status is the only non-terminal one.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusExpired = "expired"
	StatusInvalid = "invalid"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

// Payment represents a tracked Lightning invoice. InvoiceID is assigned by
// the external processor and is the correlation key for webhook updates.
// All fields except Status, UpdatedAt and PaidAt are immutable after creation.
type Payment struct {
	ID           int64           `json:"id"`
	InvoiceID    string          `json:"invoiceId"`
	AmountSats   int64           `json:"amountSats"`
	AmountBTC    float64         `json:"amountBtc"` // derived at creation, 8 fractional digits
	Email        *string         `json:"email,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Status       string          `json:"status"`
	CheckoutLink *string         `json:"checkoutLink,omitempty"`
	Bolt11       *string         `json:"bolt11,omitempty"`
	PaymentHash  *string         `json:"paymentHash,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"` // opaque, returned verbatim
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	PaidAt       *time.Time      `json:"paidAt,omitempty"`
}

// SatsToBTC converts an amount in satoshis to its BTC value with 8 fractional
// digits. The division is exact for any satoshi amount, so no rounding occurs.
func SatsToBTC(sats int64) float64 {
	v, _ := strconv.ParseFloat(FormatBTC(sats), 64)
	return v
}

// FormatBTC renders a satoshi amount as a BTC decimal string with exactly
// 8 fractional digits, truncated not rounded. This is the representation
// sent to the processor, which expects a BTC-denominated amount.
func FormatBTC(sats int64) string {
	return fmt.Sprintf("%d.%08d", sats/SatsPerBTC, sats%SatsPerBTC)
}
