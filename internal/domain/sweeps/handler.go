package sweeps

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/datban/datban-api/internal/pkg/errorhandler"
	"github.com/datban/datban-api/internal/pkg/response"
)

const defaultTimeout = 60 * time.Second

// BookingSweeper covers the two booking deadline sweeps
type BookingSweeper interface {
	SweepAutoReject(ctx context.Context) (int64, error)
	SweepAutoComplete(ctx context.Context) (int64, error)
}

// TopupSweeper covers topup expiry and credit recovery
type TopupSweeper interface {
	SweepExpire(ctx context.Context) (int64, error)
	SweepRecover(ctx context.Context) (int64, error)
}

// Result reports how many rows a sweep run affected
type Result struct {
	Affected int64 `json:"affected"`
}

// Handler exposes the sweeps over HTTP so operators and external cron can
// trigger them on demand. The scheduler in cmd/sweep-worker calls the same
// service methods; running both at once is safe because every sweep claims
// rows before acting.
type Handler struct {
	bookings BookingSweeper
	topups   TopupSweeper
	timeout  time.Duration
}

func NewHandler(bookings BookingSweeper, topups TopupSweeper, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{bookings: bookings, topups: topups, timeout: timeout}
}

// Routes returns the sweep router. Mount behind the sweep token middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auto-reject", h.run("sweeps.auto_reject", h.bookings.SweepAutoReject))
	r.Post("/auto-complete", h.run("sweeps.auto_complete", h.bookings.SweepAutoComplete))
	r.Post("/topup-expire", h.run("sweeps.topup_expire", h.topups.SweepExpire))
	r.Post("/topup-recover", h.run("sweeps.topup_recover", h.topups.SweepRecover))

	return r
}

// run bounds each sweep with the configured deadline; a run cut short resumes
// on the next invocation because the sweeps claim rows one by one.
func (h *Handler) run(operation string, sweep func(ctx context.Context) (int64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		affected, err := sweep(ctx)
		if err != nil {
			errorhandler.Internal(ctx, w, operation, err)
			return
		}
		response.OK(w, Result{Affected: affected})
	}
}
