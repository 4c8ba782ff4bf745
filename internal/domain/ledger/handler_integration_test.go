package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datban/datban-api/internal/domain/ledger"
	"github.com/datban/datban-api/internal/middleware"
	"github.com/datban/datban-api/internal/pkg/jwt"
)

type walletAPIResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Balance       int64  `json:"balance"`
		EscrowBalance int64  `json:"escrow_balance"`
		Currency      string `json:"currency"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestWalletEndpointsIntegration(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)

	userID := uuid.New()
	store := ledger.NewStore(db)
	svc := ledger.NewService(store, nil)
	h := ledger.NewHandler(svc)

	jwtSvc := jwt.NewService("wallet-integration-secret", time.Hour)
	token, err := jwtSvc.GenerateAccessToken(userID, "customer")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}

	r := chi.NewRouter()
	r.Mount("/api/v1/wallet", h.Routes(middleware.Auth(jwtSvc)))

	performRequest := func(t *testing.T, path, auth string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("unauthenticated", func(t *testing.T) {
		rec := performRequest(t, "/api/v1/wallet/", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("fresh wallet", func(t *testing.T) {
		rec := performRequest(t, "/api/v1/wallet/", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body walletAPIResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !body.Success || body.Data.Balance != 0 || body.Data.EscrowBalance != 0 {
			t.Fatalf("expected empty wallet, got %+v", body.Data)
		}
		if body.Data.Currency != ledger.Currency {
			t.Fatalf("expected currency %s, got %s", ledger.Currency, body.Data.Currency)
		}
	})

	t.Run("after credit", func(t *testing.T) {
		if err := svc.Credit(context.Background(), userID, 500000, ledger.TransactionTypeTopup, uuid.New()); err != nil {
			t.Fatalf("credit failed: %v", err)
		}

		rec := performRequest(t, "/api/v1/wallet/", token)
		var body walletAPIResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if body.Data.Balance != 500000 {
			t.Fatalf("expected balance 500000, got %d", body.Data.Balance)
		}
	})

	t.Run("transactions listed", func(t *testing.T) {
		rec := performRequest(t, "/api/v1/wallet/transactions", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Success bool `json:"success"`
			Data    []struct {
				Type   string `json:"type"`
				Amount int64  `json:"amount"`
			} `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(body.Data) != 1 || body.Data[0].Type != "topup" || body.Data[0].Amount != 500000 {
			t.Fatalf("unexpected transactions: %+v", body.Data)
		}
	})
}
