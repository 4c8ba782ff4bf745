package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/datban/datban-api/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestWebhookSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		header   string
		wantCode int
	}{
		{"valid secret", "s3cret", "s3cret", http.StatusOK},
		{"wrong secret", "s3cret", "guess", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"unconfigured secret rejects everything", "", "", http.StatusUnauthorized},
		{"unconfigured secret rejects even empty match", "", "s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.WebhookSecret(tt.secret)(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", nil)
			if tt.header != "" {
				req.Header.Set(middleware.WebhookSecretHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestSweepToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		wantCode int
	}{
		{"valid token", "sweep-token", "Bearer sweep-token", http.StatusOK},
		{"case-insensitive scheme", "sweep-token", "bearer sweep-token", http.StatusOK},
		{"wrong token", "sweep-token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "sweep-token", "", http.StatusUnauthorized},
		{"malformed header", "sweep-token", "sweep-token", http.StatusUnauthorized},
		{"unconfigured token rejects everything", "", "Bearer anything", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.SweepToken(tt.token)(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/internal/sweeps/auto-reject", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}
