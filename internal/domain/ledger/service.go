package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/domain/events"
)

// Service is the read side of the ledger plus top-level credit entry used by
// topup reconciliation. All balance mutations for bookings go through the
// Store's Tx variants from the booking service; this wrapper only adds
// logging and change notifications.
type Service struct {
	store  Store
	events events.Publisher
}

func NewService(store Store, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{store: store, events: publisher}
}

func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, page, limit int) ([]*Transaction, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	txs, err := s.store.ListTransactions(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	return txs, nil
}

// Credit adds funds to a user's available balance. Re-running with the same
// (type, relatedID) is a successful no-op.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, relatedID uuid.UUID) error {
	if err := s.store.Credit(ctx, userID, amount, txType, relatedID); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Str("type", string(txType)).
		Str("related_id", relatedID.String()).
		Msg("Wallet credited")

	s.events.Publish(ctx, events.Event{
		Type:     events.TypeWalletUpdated,
		UserID:   userID,
		EntityID: relatedID,
		At:       time.Now().UTC(),
	})
	return nil
}
