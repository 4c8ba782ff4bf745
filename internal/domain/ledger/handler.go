package ledger

import (
	"net/http"
	"strconv"

	"github.com/datban/datban-api/internal/middleware"
	"github.com/datban/datban-api/internal/pkg/errorhandler"
	"github.com/datban/datban-api/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetWallet handles GET /api/v1/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	wallet, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		errorhandler.Internal(r.Context(), w, "ledger.get_wallet", err)
		return
	}

	response.OK(w, wallet)
}

// ListTransactions handles GET /api/v1/wallet/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, err := h.service.ListTransactions(r.Context(), userID, page, limit)
	if err != nil {
		errorhandler.Internal(r.Context(), w, "ledger.list_transactions", err)
		return
	}

	response.OK(w, txs)
}
