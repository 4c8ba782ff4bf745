package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies what changed. Clients treat events as invalidation
// signals and re-fetch; the payload is never authoritative for money.
type Type string

const (
	TypeWalletUpdated  Type = "wallet.updated"
	TypeTopupUpdated   Type = "topup.updated"
	TypeBookingUpdated Type = "booking.updated"
)

// Event is one change notification for one user
type Event struct {
	Type     Type      `json:"type"`
	UserID   uuid.UUID `json:"user_id"`
	EntityID uuid.UUID `json:"entity_id"`
	Status   string    `json:"status,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher fans change notifications out to connected clients.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NopPublisher drops all events; used where no hub is wired (sweep worker, tests).
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
