package topup

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the topup router for authenticated users. The bank webhook
// is mounted separately at the root router with its own secret check.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/cancel", h.Cancel)
	})

	return r
}
