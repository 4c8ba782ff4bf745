package topup

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

// Create handles POST /api/v1/topups
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

	userID := middleware.GetUserID(r.Context())

	resp, err := h.service.Create(r.Context(), userID, req.Amount)
	if err != nil {
		errorhandler.Internal(r.Context(), w, "topup.create", err)
		return
	}

	response.Created(w, resp)
}

// Get handles GET /api/v1/topups/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid topup id")
		return
	}

	t, err := h.service.GetByID(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "Topup request not found")
		case errors.Is(err, ErrForbidden):
			response.Forbidden(w, "Not your topup request")
		default:
			errorhandler.Internal(r.Context(), w, "topup.get", err)
		}
		return
	}

	response.OK(w, t)
}

// List handles GET /api/v1/topups
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	topups, err := h.service.ListByUser(r.Context(), middleware.GetUserID(r.Context()), page, limit)
	if err != nil {
		errorhandler.Internal(r.Context(), w, "topup.list", err)
		return
	}

	response.OK(w, topups)
}

// Cancel handles POST /api/v1/topups/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid topup id")
		return
	}

	err = h.service.Cancel(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "Topup request not found")
		case errors.Is(err, ErrForbidden):
			response.Forbidden(w, "Not your topup request")
		case errors.Is(err, ErrNotPending):
			response.Conflict(w, "Topup request is no longer pending")
		default:
			errorhandler.Internal(r.Context(), w, "topup.cancel", err)
		}
		return
	}

	response.OK(w, map[string]string{"status": string(StatusCancelled)})
}
