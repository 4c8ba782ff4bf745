package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/domain/events"
	"github.com/datban/datban-api/internal/domain/ledger"
)

const codeRetries = 5

// Outcome classifies what a bank notification did. Every outcome except a
// storage failure is acknowledged to the bank with 200, because the bank
// retries on anything else and none of these get better on retry.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"   // no transfer code in the description
	OutcomeNoMatch   Outcome = "no_match"  // code present but no pending request carries it
	OutcomeHeld      Outcome = "held"      // short amount, parked for manual review
	OutcomeCredited  Outcome = "credited"  // confirmed and wallet credited
	OutcomeConfirmed Outcome = "confirmed" // confirmed but credit deferred to the recovery sweep
)

// Service owns the topup lifecycle: code issuance, bank webhook
// reconciliation, cancellation and the two sweeps.
type Service struct {
	repo   Repository
	ledger *ledger.Service
	codec  *Codec
	events events.Publisher

	ttl         time.Duration
	accountNum  string
	accountName string
}

func NewService(repo Repository, ledgerSvc *ledger.Service, codec *Codec, publisher events.Publisher, ttl time.Duration, accountNum, accountName string) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:        repo,
		ledger:      ledgerSvc,
		codec:       codec,
		events:      publisher,
		ttl:         ttl,
		accountNum:  accountNum,
		accountName: accountName,
	}
}

// Create issues a new topup request with a unique transfer code
func (s *Service) Create(ctx context.Context, userID uuid.UUID, amount int64) (*CreateResponse, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	now := time.Now().UTC()
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := s.codec.Generate()
		if err != nil {
			return nil, err
		}

		t := &TopupRequest{
			ID:           uuid.New(),
			UserID:       userID,
			Amount:       amount,
			TransferCode: code,
			Status:       StatusPending,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.ttl),
		}

		err = s.repo.Create(ctx, t)
		if err == nil {
			log.Info().
				Str("topup_id", t.ID.String()).
				Str("user_id", userID.String()).
				Int64("amount", amount).
				Msg("Topup request created")

			return &CreateResponse{
				Topup:             t,
				BankAccountNumber: s.accountNum,
				BankAccountName:   s.accountName,
				TransferContent:   code,
			}, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, ErrCodeExhausted
}

func (s *Service) GetByID(ctx context.Context, id, userID uuid.UUID) (*TopupRequest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	if t.UserID != userID {
		return nil, ErrForbidden
	}
	return t, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]*TopupRequest, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	topups, err := s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if topups == nil {
		topups = []*TopupRequest{}
	}
	return topups, nil
}

// Cancel withdraws a still-pending topup request. Cancelling a request that
// already left pending is not an error worth surfacing beyond ErrNotPending;
// money already in flight is handled by the webhook path, never by the user.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}
	if t.UserID != userID {
		return ErrForbidden
	}

	claimed, err := s.repo.CancelPending(ctx, id, userID)
	if err != nil {
		return err
	}
	if claimed == 0 {
		return ErrNotPending
	}

	s.publish(ctx, t.UserID, t.ID, StatusCancelled)
	return nil
}

// Reconcile matches one bank transfer notification against pending topup
// requests. Safe to call any number of times with the same notification:
// the first call claims the request, later calls find nothing pending and
// the ledger refuses a second credit for the same topup anyway.
func (s *Service) Reconcile(ctx context.Context, n BankNotification) (Outcome, error) {
	code := s.codec.Extract(n.Description)
	if code == "" {
		log.Info().
			Str("bank_tx", n.TransactionID).
			Int64("amount", n.Amount).
			Msg("Bank transfer without transfer code, ignoring")
		return OutcomeIgnored, nil
	}

	// Look before claiming only to decide between confirm and hold; the
	// claim itself re-checks pending status atomically.
	existing, err := s.repo.GetByTransferCode(ctx, code)
	if err != nil {
		return "", err
	}
	if existing == nil {
		log.Warn().
			Str("bank_tx", n.TransactionID).
			Str("transfer_code", code).
			Int64("amount", n.Amount).
			Msg("Bank transfer references unknown transfer code")
		return OutcomeNoMatch, nil
	}

	if n.Amount < existing.Amount {
		t, err := s.repo.ClaimHold(ctx, code, n.Amount)
		if err != nil {
			return "", err
		}
		if t == nil {
			// Lost the race or redelivery; nothing left to do.
			return OutcomeNoMatch, nil
		}
		log.Warn().
			Str("topup_id", t.ID.String()).
			Int64("expected", t.Amount).
			Int64("received", n.Amount).
			Msg("Short bank transfer parked for manual review")
		s.publish(ctx, t.UserID, t.ID, StatusManualReview)
		return OutcomeHeld, nil
	}

	t, err := s.repo.ClaimConfirm(ctx, code, n.Amount)
	if err != nil {
		return "", err
	}
	if t == nil {
		log.Info().
			Str("bank_tx", n.TransactionID).
			Str("transfer_code", code).
			Msg("Bank transfer redelivery for non-pending topup, acknowledged")
		return OutcomeNoMatch, nil
	}

	// The claim is durable at this point. A credit failure here is deferred
	// to the recovery sweep rather than bounced back to the bank, because a
	// bank retry could never observe the request pending again.
	if err := s.credit(ctx, t); err != nil {
		log.Error().
			Err(err).
			Str("topup_id", t.ID.String()).
			Msg("Topup confirmed but credit deferred")
		return OutcomeConfirmed, nil
	}

	return OutcomeCredited, nil
}

// credit applies the wallet credit for a confirmed topup and marks it done
func (s *Service) credit(ctx context.Context, t *TopupRequest) error {
	if err := s.ledger.Credit(ctx, t.UserID, t.Amount, ledger.TransactionTypeTopup, t.ID); err != nil {
		return fmt.Errorf("credit topup %s: %w", t.ID, err)
	}
	if err := s.repo.MarkCredited(ctx, t.ID); err != nil {
		// The credit itself is safe: the ledger will no-op a retry.
		return fmt.Errorf("mark topup %s credited: %w", t.ID, err)
	}
	s.publish(ctx, t.UserID, t.ID, StatusConfirmed)
	return nil
}

// SweepExpire moves stale pending requests to expired and returns the count
func (s *Service) SweepExpire(ctx context.Context) (int64, error) {
	affected, err := s.repo.ExpirePending(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		log.Info().Int64("affected", affected).Msg("Expired stale topup requests")
	}
	return affected, nil
}

// SweepRecover retries the wallet credit for confirmed requests whose credit
// failed after the claim. Each row is affected at most once per run and the
// ledger dedupe makes double runs harmless.
func (s *Service) SweepRecover(ctx context.Context) (int64, error) {
	topups, err := s.repo.ListConfirmedUncredited(ctx, 100)
	if err != nil {
		return 0, err
	}

	var recovered int64
	for _, t := range topups {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if err := s.credit(ctx, t); err != nil {
			log.Error().Err(err).Str("topup_id", t.ID.String()).Msg("Topup credit recovery failed")
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Info().Int64("affected", recovered).Msg("Recovered uncredited topups")
	}
	return recovered, nil
}

func (s *Service) publish(ctx context.Context, userID, topupID uuid.UUID, status Status) {
	s.events.Publish(ctx, events.Event{
		Type:     events.TypeTopupUpdated,
		UserID:   userID,
		EntityID: topupID,
		Status:   string(status),
		At:       time.Now().UTC(),
	})
}
