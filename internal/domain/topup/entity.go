package topup

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents topup request status
type Status string

const (
	StatusPending      Status = "pending"
	StatusConfirmed    Status = "confirmed"
	StatusCancelled    Status = "cancelled"
	StatusExpired      Status = "expired"
	StatusManualReview Status = "manual_review"
)

// TopupRequest is one user intent to move money into the wallet by bank
// transfer. The transfer code is what ties an incoming bank notification
// back to this row; it is unique across all requests ever created.
type TopupRequest struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	UserID       uuid.UUID     `db:"user_id" json:"user_id"`
	Amount       int64         `db:"amount" json:"amount"`
	TransferCode string        `db:"transfer_code" json:"transfer_code"`
	Status       Status        `db:"status" json:"status"`
	// ReceivedAmount is what the bank actually reported, set on confirmation
	// or manual review. It can differ from Amount; the wallet is only ever
	// credited with Amount.
	ReceivedAmount sql.NullInt64 `db:"received_amount" json:"received_amount,omitempty"`
	// Credited tracks whether the wallet credit went through. The ledger's
	// own dedupe is the real idempotency guard; this flag only lets the
	// recovery sweep find confirmed rows whose credit failed downstream.
	Credited    bool         `db:"credited" json:"credited"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time    `db:"expires_at" json:"expires_at"`
	ConfirmedAt sql.NullTime `db:"confirmed_at" json:"confirmed_at,omitempty"`
}
