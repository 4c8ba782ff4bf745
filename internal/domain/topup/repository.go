package topup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository defines topup request data access
type Repository interface {
	Migrate(ctx context.Context) error
	Create(ctx context.Context, t *TopupRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*TopupRequest, error)
	GetByTransferCode(ctx context.Context, code string) (*TopupRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*TopupRequest, error)

	// ClaimConfirm atomically moves a pending request with this transfer code
	// to confirmed and returns the claimed row. Returns (nil, nil) when no
	// pending row carries the code, which covers both unknown codes and
	// already-processed ones.
	ClaimConfirm(ctx context.Context, transferCode string, receivedAmount int64) (*TopupRequest, error)

	// ClaimHold moves a pending request to manual_review the same way.
	ClaimHold(ctx context.Context, transferCode string, receivedAmount int64) (*TopupRequest, error)

	// CancelPending moves a pending request to cancelled only if it is still
	// pending and owned by the user. Returns the number of rows claimed.
	CancelPending(ctx context.Context, id, userID uuid.UUID) (int64, error)

	// ExpirePending moves every pending request past its deadline to expired
	// and returns how many rows were affected.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)

	MarkCredited(ctx context.Context, id uuid.UUID) error
	ListConfirmedUncredited(ctx context.Context, limit int) ([]*TopupRequest, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates topup repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// isUniqueViolation reports a duplicate transfer code insert
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Migrate creates the topup_requests table if it doesn't exist
func (r *repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS topup_requests (
			id               UUID PRIMARY KEY,
			user_id          UUID NOT NULL,
			amount           BIGINT NOT NULL CHECK (amount > 0),
			transfer_code    VARCHAR(32) NOT NULL UNIQUE,
			status           VARCHAR(16) NOT NULL DEFAULT 'pending',
			received_amount  BIGINT,
			credited         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at       TIMESTAMPTZ NOT NULL,
			confirmed_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_topups_user_created
			ON topup_requests(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_topups_pending_expiry
			ON topup_requests(expires_at) WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS idx_topups_uncredited
			ON topup_requests(confirmed_at) WHERE status = 'confirmed' AND credited = FALSE;
	`)
	return err
}

func (r *repository) Create(ctx context.Context, t *TopupRequest) error {
	query := `
		INSERT INTO topup_requests (id, user_id, amount, transfer_code, status, credited, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		t.Amount,
		t.TransferCode,
		t.Status,
		t.CreatedAt,
		t.ExpiresAt,
	)
	return err
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*TopupRequest, error) {
	query := `SELECT * FROM topup_requests WHERE id = $1`
	var t TopupRequest
	err := r.db.GetContext(ctx, &t, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) GetByTransferCode(ctx context.Context, code string) (*TopupRequest, error) {
	query := `SELECT * FROM topup_requests WHERE transfer_code = $1`
	var t TopupRequest
	err := r.db.GetContext(ctx, &t, query, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*TopupRequest, error) {
	query := `
		SELECT * FROM topup_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var topups []*TopupRequest
	err := r.db.SelectContext(ctx, &topups, query, userID, limit, offset)
	return topups, err
}

func (r *repository) claim(ctx context.Context, transferCode string, receivedAmount int64, to Status) (*TopupRequest, error) {
	query := `
		UPDATE topup_requests
		SET status = $2, received_amount = $3, confirmed_at = now()
		WHERE transfer_code = $1 AND status = 'pending'
		RETURNING *
	`
	var t TopupRequest
	err := r.db.GetContext(ctx, &t, query, transferCode, to, receivedAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) ClaimConfirm(ctx context.Context, transferCode string, receivedAmount int64) (*TopupRequest, error) {
	return r.claim(ctx, transferCode, receivedAmount, StatusConfirmed)
}

func (r *repository) ClaimHold(ctx context.Context, transferCode string, receivedAmount int64) (*TopupRequest, error) {
	return r.claim(ctx, transferCode, receivedAmount, StatusManualReview)
}

func (r *repository) CancelPending(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE topup_requests
		SET status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE topup_requests
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) MarkCredited(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE topup_requests SET credited = true WHERE id = $1
	`, id)
	return err
}

func (r *repository) ListConfirmedUncredited(ctx context.Context, limit int) ([]*TopupRequest, error) {
	query := `
		SELECT * FROM topup_requests
		WHERE status = 'confirmed' AND credited = false
		ORDER BY confirmed_at ASC
		LIMIT $1
	`
	var topups []*TopupRequest
	err := r.db.SelectContext(ctx, &topups, query, limit)
	return topups, err
}
