package errorhandler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/middleware"
	"github.com/datban/datban-api/internal/pkg/response"
)

// Internal logs an unexpected error with request context and sends a 500.
// Ledger-affecting handlers route every unmapped error through here so
// nothing fails silently.
func Internal(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	log.Error().
		Str("request_id", requestID(ctx)).
		Str("operation", operation).
		Err(err).
		Msg("Request error")

	response.InternalError(w)
}

// Rejected logs and sends a mapped client error.
func Rejected(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := log.Warn().
		Str("request_id", requestID(ctx)).
		Str("error_code", code).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("Request rejected")

	response.Error(w, status, code, message)
}

func requestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}
