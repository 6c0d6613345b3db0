package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payment/x", nil)

	WriteError(rec, req.Context(), http.StatusNotFound, ErrCodeNotFound, "Paiement non trouvé")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	// The public envelope is flat: no internal code leaks to clients.
	want := `{"error":"Paiement non trouvé"}`
	if got := rec.Body.String(); got != want {
		t.Errorf("expected body %s, got %s", want, got)
	}
}
