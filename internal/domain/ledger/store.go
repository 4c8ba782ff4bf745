package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the only gateway to wallet balances. Every primitive is atomic
// with respect to all other operations on the same user: the balance check
// lives in the UPDATE's WHERE clause, so concurrent callers can never
// interleave into a negative balance, and the transaction row is written in
// the same database transaction as the mutation (one without the other is
// impossible).
//
// The Tx variants run inside a caller-supplied transaction so a ledger
// effect can commit together with a booking row update.
type Store interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
	GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error)

	Credit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error
	Debit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error
	Reserve(ctx context.Context, userID uuid.UUID, amount int64, relatedID uuid.UUID) error
	Release(ctx context.Context, userID uuid.UUID, amount int64, dest ReleaseDestination, relatedID uuid.UUID) error

	BeginTxx(ctx context.Context) (*sqlx.Tx, error)
	CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error
	ReserveTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, relatedID uuid.UUID) error
	ReleaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, dest ReleaseDestination, relatedID uuid.UUID) error
	RecordFeeTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, relatedID uuid.UUID) error

	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error)
}

// SQLStore implements Store over PostgreSQL
type SQLStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// Migrate creates the ledger tables if they don't exist. The CHECK
// constraints are the backstop for the invariant the conditional updates
// already enforce: no balance ever goes negative, whatever the code does.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_wallets (
			user_id         UUID PRIMARY KEY,
			balance         BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			escrow_balance  BIGINT NOT NULL DEFAULT 0 CHECK (escrow_balance >= 0),
			currency        VARCHAR(3) NOT NULL DEFAULT 'VND',
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wallet_transactions (
			id          UUID PRIMARY KEY,
			user_id     UUID NOT NULL,
			type        VARCHAR(32) NOT NULL,
			amount      BIGINT NOT NULL CHECK (amount > 0),
			related_id  UUID NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_tx_dedupe
			ON wallet_transactions(user_id, type, related_id);
		CREATE INDEX IF NOT EXISTS idx_wallet_tx_user_created
			ON wallet_transactions(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS ledger_archive_days (
			day          TIMESTAMPTZ PRIMARY KEY,
			archived_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *SQLStore) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance, escrow_balance, currency)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, Currency)
	return err
}

func (s *SQLStore) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	if err := s.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}

	var w Wallet
	err := s.db.GetContext(ctx, &w, `
		SELECT user_id, balance, escrow_balance, currency, updated_at
		FROM user_wallets WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// appendEntry writes the audit row for a mutation. It doubles as the
// idempotency claim: if an entry for (user, type, related) already exists
// with the same amount the whole operation is a no-op, with a different
// amount it is a conflict.
func (s *SQLStore) appendEntry(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, amount int64, relatedID uuid.UUID) (applied bool, err error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, amount, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, type, related_id) DO NOTHING
	`, uuid.New(), userID, string(txType), amount, relatedID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}

	var existing int64
	err = tx.GetContext(ctx, &existing, `
		SELECT amount FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND related_id = $3
	`, userID, string(txType), relatedID)
	if err != nil {
		return false, err
	}
	if existing != amount {
		return false, ErrReferenceConflict
	}
	return false, nil
}

func (s *SQLStore) ensureWalletTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance, escrow_balance, currency)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, Currency)
	return err
}

func (s *SQLStore) CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.ensureWalletTx(ctx, tx, userID); err != nil {
		return err
	}

	applied, err := s.appendEntry(ctx, tx, userID, txType, amount, relatedID)
	if err != nil || !applied {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_wallets SET balance = balance + $2, updated_at = now()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (s *SQLStore) debitTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	applied, err := s.appendEntry(ctx, tx, userID, txType, amount, relatedID)
	if err != nil || !applied {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_wallets SET balance = balance - $2, updated_at = now()
		WHERE user_id = $1 AND balance >= $2
	`, userID, amount)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// Aborts the surrounding transaction, so the audit row is rolled
		// back with it and no partial effect remains.
		return ErrInsufficientFunds
	}
	return nil
}

func (s *SQLStore) ReserveTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, relatedID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	applied, err := s.appendEntry(ctx, tx, userID, TransactionTypeEscrowReserve, amount, relatedID)
	if err != nil || !applied {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_wallets
		SET balance = balance - $2, escrow_balance = escrow_balance + $2, updated_at = now()
		WHERE user_id = $1 AND balance >= $2
	`, userID, amount)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *SQLStore) ReleaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, dest ReleaseDestination, relatedID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	txType := TransactionTypeRefund
	query := `
		UPDATE user_wallets
		SET escrow_balance = escrow_balance - $2, balance = balance + $2, updated_at = now()
		WHERE user_id = $1 AND escrow_balance >= $2`
	if dest == ReleaseExternal {
		txType = TransactionTypeSettlement
		query = `
		UPDATE user_wallets
		SET escrow_balance = escrow_balance - $2, updated_at = now()
		WHERE user_id = $1 AND escrow_balance >= $2`
	}

	applied, err := s.appendEntry(ctx, tx, userID, txType, amount, relatedID)
	if err != nil || !applied {
		return err
	}

	res, err := tx.ExecContext(ctx, query, userID, amount)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrInsufficientEscrow
	}
	return nil
}

// RecordFeeTx writes a platform_fee audit entry without touching any wallet.
// The fee stays with the platform; it is the gap between the escrow released
// and the provider share credited.
func (s *SQLStore) RecordFeeTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, relatedID uuid.UUID) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	_, err := s.appendEntry(ctx, tx, userID, TransactionTypePlatformFee, amount, relatedID)
	return err
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Credit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.CreditTx(ctx, tx, userID, amount, txType, relatedID)
	})
}

func (s *SQLStore) Debit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.debitTx(ctx, tx, userID, amount, txType, relatedID)
	})
}

func (s *SQLStore) Reserve(ctx context.Context, userID uuid.UUID, amount int64, relatedID uuid.UUID) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.ReserveTx(ctx, tx, userID, amount, relatedID)
	})
}

func (s *SQLStore) Release(ctx context.Context, userID uuid.UUID, amount int64, dest ReleaseDestination, relatedID uuid.UUID) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.ReleaseTx(ctx, tx, userID, amount, dest, relatedID)
	})
}

func (s *SQLStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	var txs []*Transaction
	err := s.db.SelectContext(ctx, &txs, `
		SELECT id, user_id, type, amount, related_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return txs, err
}
