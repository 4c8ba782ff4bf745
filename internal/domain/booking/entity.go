package booking

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Status represents booking status
type Status string

const (
	StatusPending          Status = "pending"
	StatusAccepted         Status = "accepted"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
	StatusCompletedPending Status = "completed_pending"
	StatusNoShow           Status = "no_show"
	StatusCompleted        Status = "completed"
)

// transitions is the whole state machine. Anything not listed here is
// rejected before any row or balance is touched.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusAccepted:  true,
		StatusRejected:  true,
		StatusCancelled: true,
	},
	StatusAccepted: {
		StatusCompletedPending: true,
		StatusNoShow:           true,
		StatusCancelled:        true,
	},
	StatusCompletedPending: {
		StatusCompleted: true,
	},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// IsTerminal reports whether a status has no outgoing transitions
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Booking is one table reservation. Amount is the full prepaid price in
// whole VND, held in the customer's escrow from creation until a terminal
// status resolves it.
type Booking struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CustomerID  uuid.UUID `db:"customer_id" json:"customer_id"`
	ProviderID  uuid.UUID `db:"provider_id" json:"provider_id"`
	Amount      int64     `db:"amount" json:"amount"`
	Status      Status    `db:"status" json:"status"`
	PartySize   int       `db:"party_size" json:"party_size"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Note        string    `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Split divides a booking amount between provider and platform. The
// provider share is rounded to the nearest whole VND and the fee is the
// exact remainder, so the two always sum to the total.
func Split(total int64, feeRate float64) (providerShare, platformFee int64) {
	providerShare = int64(math.Round(float64(total) * (1 - feeRate)))
	platformFee = total - providerShare
	return providerShare, platformFee
}
