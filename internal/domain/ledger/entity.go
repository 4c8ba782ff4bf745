package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies ledger mutations
type TransactionType string

const (
	TransactionTypeTopup         TransactionType = "topup"
	TransactionTypeEscrowReserve TransactionType = "escrow_reserve"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeSettlement    TransactionType = "settlement"
	TransactionTypePlatformFee   TransactionType = "platform_fee"
)

// ReleaseDestination says where escrowed funds go on release
type ReleaseDestination string

const (
	// ReleaseToBalance returns escrow to the owner's available balance (refund)
	ReleaseToBalance ReleaseDestination = "balance"
	// ReleaseExternal removes escrow from the owner's wallet entirely (settlement payout)
	ReleaseExternal ReleaseDestination = "external"
)

// Currency is fixed platform-wide; amounts are whole VND.
const Currency = "VND"

// Wallet holds a user's available and escrowed funds.
// Mutated only through Store primitives, never by direct assignment.
type Wallet struct {
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	Balance       int64     `db:"balance" json:"balance"`
	EscrowBalance int64     `db:"escrow_balance" json:"escrow_balance"`
	Currency      string    `db:"currency" json:"currency"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is one append-only audit record per ledger mutation.
// Rows are never updated or deleted. The unique (user_id, type, related_id)
// index is what makes every ledger operation safe to re-run.
type Transaction struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Type      TransactionType `db:"type" json:"type"`
	Amount    int64           `db:"amount" json:"amount"`
	RelatedID uuid.UUID       `db:"related_id" json:"related_id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
