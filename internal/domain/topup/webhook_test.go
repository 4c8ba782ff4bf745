package topup_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/datban/datban-api/internal/domain/topup"
	"github.com/datban/datban-api/internal/middleware"
)

func postWebhook(t *testing.T, r chi.Router, secret string, n topup.BankNotification) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(middleware.WebhookSecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestBankWebhookEndToEnd(t *testing.T) {
	repo := newRepoStub()
	ls := newLedgerStub()
	svc := newTestService(repo, ls)
	h := topup.NewHandler(svc)

	r := chi.NewRouter()
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookSecret("hook-secret"))
		r.Post("/bank", h.HandleBankWebhook)
	})

	_, userID := seedPending(t, repo, "DD17364822", 500000)

	n := topup.BankNotification{
		TransactionID: "bank-tx-e2e",
		Amount:        500000,
		Description:   "nap tien dd17364822",
	}

	// Wrong secret never reaches reconciliation.
	rec := postWebhook(t, r, "wrong", n)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad secret, got %d", rec.Code)
	}
	if got := ls.balance(userID); got != 0 {
		t.Fatalf("unauthenticated webhook must not credit, balance is %d", got)
	}

	// Delivery and redelivery both ack with 200; the credit lands once.
	for i := 0; i < 2; i++ {
		rec = postWebhook(t, r, "hook-secret", n)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if got := ls.balance(userID); got != 500000 {
		t.Fatalf("expected exactly one credit of 500000, balance is %d", got)
	}
}

func TestBankWebhookRejectsBadPayload(t *testing.T) {
	svc := newTestService(newRepoStub(), newLedgerStub())
	h := topup.NewHandler(svc)

	r := chi.NewRouter()
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookSecret("hook-secret"))
		r.Post("/bank", h.HandleBankWebhook)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewReader([]byte("{not json")))
	req.Header.Set(middleware.WebhookSecretHeader, "hook-secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed payload, got %d", rec.Code)
	}

	// Missing amount fails validation.
	rec = postWebhook(t, r, "hook-secret", topup.BankNotification{
		TransactionID: "bank-tx-7",
		Description:   "DD12345678",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing amount, got %d", rec.Code)
	}
}
