// Package btcpay provides the client for the BTCPay Server Greenfield API
// and verification of its webhook signatures.
package btcpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "BTCPay-Sig"

const signaturePrefix = "sha256="

// VerifySignature reports whether header carries a valid HMAC-SHA256 of
// body under secret. The expected header format is "sha256=<hex digest>".
//
// Verification must run on the raw request bytes before any JSON parsing:
// re-serializing a parsed body is not guaranteed to reproduce the exact
// bytes the processor signed.
func VerifySignature(body []byte, header, secret string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	// hmac.Equal is constant time.
	return hmac.Equal(provided, mac.Sum(nil))
}

// Sign computes the signature header value for body under secret.
// Used by tests and tooling to produce valid webhook calls.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
