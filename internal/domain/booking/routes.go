package booking

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/datban/datban-api/internal/middleware"
)

// Routes returns the booking router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		// Either party can cancel; only the customer confirms.
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/confirm", h.Confirm)

		// Provider side
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireProvider())
			r.Post("/{id}/accept", h.Accept)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/deliver", h.Deliver)
			r.Post("/{id}/no-show", h.NoShow)
		})
	})

	return r
}
