package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datban/datban-api/internal/domain/ledger"
	"github.com/datban/datban-api/internal/middleware"
	"github.com/datban/datban-api/internal/pkg/errorhandler"
	"github.com/datban/datban-api/internal/pkg/response"
	"github.com/datban/datban-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /api/v1/bookings
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	b, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			errorhandler.Rejected(r.Context(), w, http.StatusConflict, "INSUFFICIENT_FUNDS", "Wallet balance is too low for this booking", err)
			return
		}
		errorhandler.Internal(r.Context(), w, "booking.create", err)
		return
	}

	response.Created(w, b)
}

// Get handles GET /api/v1/bookings/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid booking id")
		return
	}

	b, err := h.service.GetByID(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, "booking.get", err)
		return
	}

	response.OK(w, b)
}

// List handles GET /api/v1/bookings. Providers see bookings at their
// venue, everyone else sees bookings they made.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	userID := middleware.GetUserID(r.Context())

	var (
		bookings []*Booking
		err      error
	)
	if middleware.GetRole(r.Context()) == "provider" {
		bookings, err = h.service.ListForProvider(r.Context(), userID, page, limit)
	} else {
		bookings, err = h.service.ListForCustomer(r.Context(), userID, page, limit)
	}
	if err != nil {
		errorhandler.Internal(r.Context(), w, "booking.list", err)
		return
	}

	response.OK(w, bookings)
}

// Accept handles POST /api/v1/bookings/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "booking.accept", h.service.Accept)
}

// Reject handles POST /api/v1/bookings/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "booking.reject", h.service.Reject)
}

// Cancel handles POST /api/v1/bookings/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "booking.cancel", h.service.Cancel)
}

// Deliver handles POST /api/v1/bookings/{id}/deliver
func (h *Handler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "booking.deliver", h.service.Deliver)
}

// Confirm handles POST /api/v1/bookings/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "booking.confirm", h.service.Confirm)
}

// NoShow handles POST /api/v1/bookings/{id}/no-show
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "booking.no_show", h.service.NoShow)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, operation string, op func(ctx context.Context, id, actorID uuid.UUID) (*Booking, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid booking id")
		return
	}

	b, err := op(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, operation, err)
		return
	}

	response.OK(w, b)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var ite *InvalidTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "Booking not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, "Not your booking")
	case errors.As(err, &ite):
		errorhandler.Rejected(r.Context(), w, http.StatusConflict, "INVALID_TRANSITION", ite.Error(), err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		errorhandler.Rejected(r.Context(), w, http.StatusConflict, "INSUFFICIENT_FUNDS", "Wallet balance is too low", err)
	default:
		errorhandler.Internal(r.Context(), w, operation, err)
	}
}
