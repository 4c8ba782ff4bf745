package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/domain/events"
	"github.com/datban/datban-api/internal/domain/ledger"
)

const sweepBatchSize = 100

// Service owns the booking lifecycle. Every transition follows the same
// shape: check the move is legal, claim the booking row with a conditional
// update, apply the ledger effect in the same database transaction, commit.
// A lost claim means someone else already handled it.
type Service struct {
	repo   Repository
	ledger ledger.Store
	events events.Publisher

	feeRate float64
	noShow  NoShowPolicy

	pendingTTL          time.Duration
	completedPendingTTL time.Duration
}

func NewService(repo Repository, ledgerStore ledger.Store, publisher events.Publisher, feeRate float64, noShow NoShowPolicy, pendingTTL, completedPendingTTL time.Duration) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if noShow == nil {
		noShow = DefaultNoShowPolicy
	}
	return &Service{
		repo:                repo,
		ledger:              ledgerStore,
		events:              publisher,
		feeRate:             feeRate,
		noShow:              noShow,
		pendingTTL:          pendingTTL,
		completedPendingTTL: completedPendingTTL,
	}
}

// Create opens a booking and reserves the full amount from the customer's
// balance in one database transaction. Insufficient balance rolls the
// booking row back with the reservation.
func (s *Service) Create(ctx context.Context, customerID uuid.UUID, req CreateRequest) (*Booking, error) {
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b := &Booking{
		ID:          uuid.New(),
		CustomerID:  customerID,
		ProviderID:  providerID,
		Amount:      req.Amount,
		Status:      StatusPending,
		PartySize:   req.PartySize,
		ScheduledAt: req.ScheduledAt,
		Note:        req.Note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.repo.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.CreateTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.ledger.ReserveTx(ctx, tx, customerID, b.Amount, b.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Info().
		Str("booking_id", b.ID.String()).
		Str("customer_id", customerID.String()).
		Str("provider_id", providerID.String()).
		Int64("amount", b.Amount).
		Msg("Booking created, amount reserved")

	s.notify(ctx, b)
	return b, nil
}

func (s *Service) GetByID(ctx context.Context, id, actorID uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	if b.CustomerID != actorID && b.ProviderID != actorID {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID, page, limit int) ([]*Booking, error) {
	limit, offset := pageBounds(page, limit)
	bookings, err := s.repo.ListByCustomer(ctx, customerID, limit, offset)
	return nonNil(bookings), err
}

func (s *Service) ListForProvider(ctx context.Context, providerID uuid.UUID, page, limit int) ([]*Booking, error) {
	limit, offset := pageBounds(page, limit)
	bookings, err := s.repo.ListByProvider(ctx, providerID, limit, offset)
	return nonNil(bookings), err
}

// Accept: provider takes the booking. No money moves.
func (s *Service) Accept(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.act(ctx, id, providerID, actorProvider, StatusAccepted, nil)
}

// Reject: provider declines a pending booking, full refund.
func (s *Service) Reject(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.act(ctx, id, providerID, actorProvider, StatusRejected, s.refund)
}

// Cancel: either side calls the booking off before the visit, full refund
// to the customer.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*Booking, error) {
	return s.act(ctx, id, actorID, actorEither, StatusCancelled, s.refund)
}

// Deliver: provider marks the visit as served, awaiting customer
// confirmation. No money moves yet.
func (s *Service) Deliver(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	return s.act(ctx, id, providerID, actorProvider, StatusCompletedPending, nil)
}

// Confirm: customer signs off, escrow settles to the provider minus the
// platform fee.
func (s *Service) Confirm(ctx context.Context, id, customerID uuid.UUID) (*Booking, error) {
	return s.act(ctx, id, customerID, actorCustomer, StatusCompleted, s.settle)
}

// NoShow: provider reports the customer never arrived. The payout follows
// the configured policy.
func (s *Service) NoShow(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	effect := s.settle
	if b, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	} else if b != nil && s.noShow(b) == NoShowRefund {
		effect = s.refund
	}
	return s.act(ctx, id, providerID, actorProvider, StatusNoShow, effect)
}

type actorRole int

const (
	actorCustomer actorRole = iota
	actorProvider
	actorEither
)

type ledgerEffect func(ctx context.Context, tx *sqlx.Tx, b *Booking) error

// act runs one state machine move end to end
func (s *Service) act(ctx context.Context, id, actorID uuid.UUID, role actorRole, to Status, effect ledgerEffect) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	switch role {
	case actorCustomer:
		if b.CustomerID != actorID {
			return nil, ErrForbidden
		}
	case actorProvider:
		if b.ProviderID != actorID {
			return nil, ErrForbidden
		}
	case actorEither:
		if b.CustomerID != actorID && b.ProviderID != actorID {
			return nil, ErrForbidden
		}
	}

	updated, moved, err := s.transition(ctx, b, to, effect)
	if err != nil {
		return nil, err
	}

	if moved {
		s.notify(ctx, updated)
	}
	return updated, nil
}

// transition claims the status move and applies the ledger effect
// atomically. A lost claim is re-read: landing on the requested status means
// a replay and succeeds as a no-op, anything else is an invalid transition
// reported against the real current state. The bool reports whether this
// call performed the move itself.
func (s *Service) transition(ctx context.Context, b *Booking, to Status, effect ledgerEffect) (*Booking, bool, error) {
	if b.Status == to {
		// Replay of an already-applied transition.
		return b, false, nil
	}
	if !CanTransition(b.Status, to) {
		return nil, false, &InvalidTransitionError{From: b.Status, To: to}
	}

	tx, err := s.repo.BeginTxx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	claimed, err := s.repo.TransitionTx(ctx, tx, b.ID, b.Status, to)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		current, err := s.repo.GetByID(ctx, b.ID)
		if err != nil {
			return nil, false, err
		}
		if current != nil && current.Status == to {
			return current, false, nil
		}
		from := b.Status
		if current != nil {
			from = current.Status
		}
		return nil, false, &InvalidTransitionError{From: from, To: to}
	}

	if effect != nil {
		if err := effect(ctx, tx, b); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	log.Info().
		Str("booking_id", b.ID.String()).
		Str("from", string(b.Status)).
		Str("to", string(to)).
		Msg("Booking transitioned")

	updated := *b
	updated.Status = to
	updated.UpdatedAt = time.Now().UTC()
	return &updated, true, nil
}

// refund returns the full escrowed amount to the customer's balance
func (s *Service) refund(ctx context.Context, tx *sqlx.Tx, b *Booking) error {
	return s.ledger.ReleaseTx(ctx, tx, b.CustomerID, b.Amount, ledger.ReleaseToBalance, b.ID)
}

// settle pays the provider their share and books the platform fee. The
// customer's escrow leaves their wallet entirely; the fee is the difference
// between that and the provider credit, recorded but held by no wallet.
func (s *Service) settle(ctx context.Context, tx *sqlx.Tx, b *Booking) error {
	if err := s.ledger.ReleaseTx(ctx, tx, b.CustomerID, b.Amount, ledger.ReleaseExternal, b.ID); err != nil {
		return err
	}

	providerShare, platformFee := Split(b.Amount, s.feeRate)
	if providerShare > 0 {
		if err := s.ledger.CreditTx(ctx, tx, b.ProviderID, providerShare, ledger.TransactionTypeSettlement, b.ID); err != nil {
			return err
		}
	}
	if platformFee > 0 {
		if err := s.ledger.RecordFeeTx(ctx, tx, b.ProviderID, platformFee, b.ID); err != nil {
			return err
		}
	}
	return nil
}

// SweepAutoReject rejects and refunds bookings the provider left pending
// past the deadline. Returns the number of bookings it moved. Safe to run
// concurrently: the conditional claim lets each row be acted on once.
func (s *Service) SweepAutoReject(ctx context.Context) (int64, error) {
	return s.sweep(ctx, StatusPending, StatusRejected, s.pendingTTL, s.refund)
}

// SweepAutoComplete settles bookings the customer never confirmed
func (s *Service) SweepAutoComplete(ctx context.Context) (int64, error) {
	return s.sweep(ctx, StatusCompletedPending, StatusCompleted, s.completedPendingTTL, s.settle)
}

func (s *Service) sweep(ctx context.Context, from, to Status, ttl time.Duration, effect ledgerEffect) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	stale, err := s.repo.ListStale(ctx, from, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	var affected int64
	for _, b := range stale {
		if ctx.Err() != nil {
			return affected, ctx.Err()
		}

		updated, moved, err := s.transition(ctx, b, to, effect)
		if err != nil {
			var ite *InvalidTransitionError
			if errors.As(err, &ite) {
				// Moved under us since the listing; not ours anymore.
				continue
			}
			log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("Booking sweep transition failed")
			continue
		}
		if moved {
			affected++
			s.notify(ctx, updated)
		}
	}

	if affected > 0 {
		log.Info().
			Str("from", string(from)).
			Str("to", string(to)).
			Int64("affected", affected).
			Msg("Booking sweep done")
	}
	return affected, nil
}

// notify tells both sides of the booking that it changed
func (s *Service) notify(ctx context.Context, b *Booking) {
	e := events.Event{
		Type:     events.TypeBookingUpdated,
		EntityID: b.ID,
		Status:   string(b.Status),
		At:       time.Now().UTC(),
	}
	e.UserID = b.CustomerID
	s.events.Publish(ctx, e)
	e.UserID = b.ProviderID
	s.events.Publish(ctx, e)
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit, (page - 1) * limit
}

func nonNil(bookings []*Booking) []*Booking {
	if bookings == nil {
		return []*Booking{}
	}
	return bookings
}
