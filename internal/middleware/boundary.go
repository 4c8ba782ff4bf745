package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/pkg/response"
)

// WebhookSecretHeader carries the shared secret on bank payment notifications.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret authenticates inbound payment notifications with a shared
// secret before any reconciliation logic runs. Constant-time compare so the
// secret cannot be probed byte by byte.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				log.Error().Str("path", r.URL.Path).Msg("Webhook secret not configured, rejecting notification")
				response.Unauthorized(w, "Webhook authentication not configured")
				return
			}

			given := r.Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				log.Warn().Str("path", r.URL.Path).Str("ip", getClientIP(r)).Msg("Webhook secret mismatch")
				response.Unauthorized(w, "Invalid webhook secret")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SweepToken authenticates the external scheduler calling the sweep endpoints
// with a static bearer token.
func SweepToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				response.Unauthorized(w, "Sweep authentication not configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" ||
				subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
				response.Unauthorized(w, "Invalid sweep token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
