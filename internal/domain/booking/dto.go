package booking

import "time"

// CreateRequest is the payload for POST /bookings
type CreateRequest struct {
	ProviderID  string    `json:"provider_id" validate:"required,uuid"`
	Amount      int64     `json:"amount" validate:"required,amount"`
	PartySize   int       `json:"party_size" validate:"required,gte=1,lte=50"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Note        string    `json:"note" validate:"max=500"`
}
