package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines booking data access. Transitions and creation run
// inside caller-supplied transactions so the booking row and its ledger
// effect commit together.
type Repository interface {
	Migrate(ctx context.Context) error
	BeginTxx(ctx context.Context) (*sqlx.Tx, error)

	CreateTx(ctx context.Context, tx *sqlx.Tx, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Booking, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Booking, error)

	// TransitionTx moves the booking from one exact status to another.
	// Returns false without error when the row was not in the from status,
	// which is how concurrent claims and replays lose quietly.
	TransitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to Status) (bool, error)

	// ListStale returns bookings sitting in the given status since before
	// the cutoff, oldest first.
	ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]*Booking, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates booking repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// Migrate creates the bookings table if it doesn't exist
func (r *repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bookings (
			id            UUID PRIMARY KEY,
			customer_id   UUID NOT NULL,
			provider_id   UUID NOT NULL,
			amount        BIGINT NOT NULL CHECK (amount > 0),
			status        VARCHAR(32) NOT NULL,
			party_size    INT NOT NULL,
			scheduled_at  TIMESTAMPTZ NOT NULL,
			note          TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_customer
			ON bookings(customer_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_bookings_provider
			ON bookings(provider_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_bookings_status_updated
			ON bookings(status, updated_at);
	`)
	return err
}

func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, b *Booking) error {
	query := `
		INSERT INTO bookings (id, customer_id, provider_id, amount, status, party_size, scheduled_at, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		b.ID,
		b.CustomerID,
		b.ProviderID,
		b.Amount,
		b.Status,
		b.PartySize,
		b.ScheduledAt,
		b.Note,
		b.CreatedAt,
		b.UpdatedAt,
	)
	return err
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	query := `SELECT * FROM bookings WHERE id = $1`
	var b Booking
	err := r.db.GetContext(ctx, &b, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Booking, error) {
	query := `
		SELECT * FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var bookings []*Booking
	err := r.db.SelectContext(ctx, &bookings, query, customerID, limit, offset)
	return bookings, err
}

func (r *repository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Booking, error) {
	query := `
		SELECT * FROM bookings
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var bookings []*Booking
	err := r.db.SelectContext(ctx, &bookings, query, providerID, limit, offset)
	return bookings, err
}

func (r *repository) TransitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to Status) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *repository) ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]*Booking, error) {
	query := `
		SELECT * FROM bookings
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	var bookings []*Booking
	err := r.db.SelectContext(ctx, &bookings, query, status, cutoff, limit)
	return bookings, err
}
