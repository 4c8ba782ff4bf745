package ledger

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the wallet router. Everything here is read-only and
// requires auth; mutations happen through topups and bookings.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.GetWallet)
		r.Get("/transactions", h.ListTransactions)
	})

	return r
}
