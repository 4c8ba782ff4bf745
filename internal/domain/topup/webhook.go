package topup

import (
	"encoding/json"
	"net/http"

	"github.com/datban/datban-api/internal/pkg/errorhandler"
	"github.com/datban/datban-api/internal/pkg/response"
	"github.com/datban/datban-api/internal/pkg/validator"
)

// HandleBankWebhook handles POST /webhooks/bank. The shared-secret check
// lives in middleware; this handler only reconciles.
//
// The bank redelivers on any non-2xx, so the contract is: 200 for every
// notification we understood (including ones we ignore or already
// processed), non-2xx only when storage failed and a retry can help.
func (h *Handler) HandleBankWebhook(w http.ResponseWriter, r *http.Request) {
	var n BankNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		response.BadRequest(w, "Invalid webhook payload")
		return
	}
	if errs := validator.Validate(n); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	outcome, err := h.service.Reconcile(r.Context(), n)
	if err != nil {
		errorhandler.Internal(r.Context(), w, "topup.webhook", err)
		return
	}

	response.OK(w, map[string]string{"outcome": string(outcome)})
}
