package topup_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/datban/datban-api/internal/domain/ledger"
	"github.com/datban/datban-api/internal/domain/topup"
)

// repoStub keeps topup requests in memory with the same claim semantics as
// the SQL repository: conditional moves out of pending, one winner.
type repoStub struct {
	mu     sync.Mutex
	topups map[uuid.UUID]*topup.TopupRequest
	byCode map[string]uuid.UUID
}

func newRepoStub() *repoStub {
	return &repoStub{
		topups: make(map[uuid.UUID]*topup.TopupRequest),
		byCode: make(map[string]uuid.UUID),
	}
}

func (r *repoStub) Migrate(ctx context.Context) error { return nil }

func (r *repoStub) Create(ctx context.Context, t *topup.TopupRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[t.TransferCode]; exists {
		return errors.New("duplicate transfer code")
	}
	cp := *t
	r.topups[t.ID] = &cp
	r.byCode[t.TransferCode] = t.ID
	return nil
}

func (r *repoStub) GetByID(ctx context.Context, id uuid.UUID) (*topup.TopupRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topups[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *repoStub) GetByTransferCode(ctx context.Context, code string) (*topup.TopupRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, nil
	}
	cp := *r.topups[id]
	return &cp, nil
}

func (r *repoStub) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*topup.TopupRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*topup.TopupRequest
	for _, t := range r.topups {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *repoStub) claim(code string, receivedAmount int64, to topup.Status) (*topup.TopupRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, nil
	}
	t := r.topups[id]
	if t.Status != topup.StatusPending {
		return nil, nil
	}
	t.Status = to
	t.ReceivedAmount.Valid = true
	t.ReceivedAmount.Int64 = receivedAmount
	t.ConfirmedAt.Valid = true
	t.ConfirmedAt.Time = time.Now()
	cp := *t
	return &cp, nil
}

func (r *repoStub) ClaimConfirm(ctx context.Context, code string, receivedAmount int64) (*topup.TopupRequest, error) {
	return r.claim(code, receivedAmount, topup.StatusConfirmed)
}

func (r *repoStub) ClaimHold(ctx context.Context, code string, receivedAmount int64) (*topup.TopupRequest, error) {
	return r.claim(code, receivedAmount, topup.StatusManualReview)
}

func (r *repoStub) CancelPending(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topups[id]
	if !ok || t.UserID != userID || t.Status != topup.StatusPending {
		return 0, nil
	}
	t.Status = topup.StatusCancelled
	return 1, nil
}

func (r *repoStub) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.topups {
		if t.Status == topup.StatusPending && t.ExpiresAt.Before(now) {
			t.Status = topup.StatusExpired
			n++
		}
	}
	return n, nil
}

func (r *repoStub) MarkCredited(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topups[id]; ok {
		t.Credited = true
	}
	return nil
}

func (r *repoStub) ListConfirmedUncredited(ctx context.Context, limit int) ([]*topup.TopupRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*topup.TopupRequest
	for _, t := range r.topups {
		if t.Status == topup.StatusConfirmed && !t.Credited {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ledgerStub implements ledger.Store with the real dedupe rule: one credit
// per (user, type, related), same amount is a no-op, different a conflict.
type ledgerStub struct {
	mu         sync.Mutex
	balances   map[uuid.UUID]int64
	entries    map[string]int64
	failCredit bool
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{
		balances: make(map[uuid.UUID]int64),
		entries:  make(map[string]int64),
	}
}

func entryKey(userID uuid.UUID, txType ledger.TransactionType, relatedID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s", userID, txType, relatedID)
}

func (l *ledgerStub) Credit(ctx context.Context, userID uuid.UUID, amount int64, txType ledger.TransactionType, relatedID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCredit {
		return errors.New("ledger down")
	}
	key := entryKey(userID, txType, relatedID)
	if prev, ok := l.entries[key]; ok {
		if prev != amount {
			return ledger.ErrReferenceConflict
		}
		return nil
	}
	l.entries[key] = amount
	l.balances[userID] += amount
	return nil
}

func (l *ledgerStub) balance(userID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *ledgerStub) EnsureWallet(ctx context.Context, userID uuid.UUID) error { return nil }
func (l *ledgerStub) GetWallet(ctx context.Context, userID uuid.UUID) (*ledger.Wallet, error) {
	return &ledger.Wallet{UserID: userID, Balance: l.balance(userID)}, nil
}
func (l *ledgerStub) Debit(ctx context.Context, userID uuid.UUID, amount int64, txType ledger.TransactionType, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) Reserve(ctx context.Context, userID uuid.UUID, amount int64, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) Release(ctx context.Context, userID uuid.UUID, amount int64, dest ledger.ReleaseDestination, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return nil, errors.New("not used")
}
func (l *ledgerStub) CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType ledger.TransactionType, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) ReserveTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) ReleaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, dest ledger.ReleaseDestination, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) RecordFeeTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, relatedID uuid.UUID) error {
	return errors.New("not used")
}
func (l *ledgerStub) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ledger.Transaction, error) {
	return nil, nil
}

func newTestService(repo *repoStub, ls *ledgerStub) *topup.Service {
	return topup.NewService(repo, ledger.NewService(ls, nil), topup.NewCodec("DD"),
		nil, 48*time.Hour, "0123456789", "DATBAN JSC")
}

func seedPending(t *testing.T, repo *repoStub, code string, amount int64) (*topup.TopupRequest, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	req := &topup.TopupRequest{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		TransferCode: code,
		Status:       topup.StatusPending,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(48 * time.Hour),
	}
	if err := repo.Create(context.Background(), req); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return req, userID
}

func TestReconcileCreditsOnceOnRedelivery(t *testing.T) {
	repo := newRepoStub()
	ls := newLedgerStub()
	svc := newTestService(repo, ls)
	ctx := context.Background()

	_, userID := seedPending(t, repo, "DD17364822", 500000)

	n := topup.BankNotification{
		TransactionID: "bank-tx-1",
		Amount:        500000,
		Description:   "NAP TIEN DD17364822",
	}

	outcome, err := svc.Reconcile(ctx, n)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if outcome != topup.OutcomeCredited {
		t.Fatalf("expected credited, got %s", outcome)
	}

	outcome, err = svc.Reconcile(ctx, n)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome == topup.OutcomeCredited {
		t.Fatal("redelivery must not credit again")
	}

	if got := ls.balance(userID); got != 500000 {
		t.Fatalf("expected exactly one credit of 500000, balance is %d", got)
	}
}

func TestReconcileIgnoresDescriptionsWithoutCode(t *testing.T) {
	svc := newTestService(newRepoStub(), newLedgerStub())

	outcome, err := svc.Reconcile(context.Background(), topup.BankNotification{
		TransactionID: "bank-tx-2",
		Amount:        100000,
		Description:   "chuyen khoan ca nhan",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != topup.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}
}

func TestReconcileUnknownCode(t *testing.T) {
	svc := newTestService(newRepoStub(), newLedgerStub())

	outcome, err := svc.Reconcile(context.Background(), topup.BankNotification{
		TransactionID: "bank-tx-3",
		Amount:        100000,
		Description:   "DD99999999",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != topup.OutcomeNoMatch {
		t.Fatalf("expected no_match, got %s", outcome)
	}
}

func TestReconcileShortAmountHeldForReview(t *testing.T) {
	repo := newRepoStub()
	ls := newLedgerStub()
	svc := newTestService(repo, ls)
	ctx := context.Background()

	req, userID := seedPending(t, repo, "DD55555555", 500000)

	outcome, err := svc.Reconcile(ctx, topup.BankNotification{
		TransactionID: "bank-tx-4",
		Amount:        450000,
		Description:   "DD55555555",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != topup.OutcomeHeld {
		t.Fatalf("expected held, got %s", outcome)
	}
	if got := ls.balance(userID); got != 0 {
		t.Fatalf("short transfer must not credit, balance is %d", got)
	}

	stored, _ := repo.GetByID(ctx, req.ID)
	if stored.Status != topup.StatusManualReview {
		t.Fatalf("expected manual_review, got %s", stored.Status)
	}
	if !stored.ReceivedAmount.Valid || stored.ReceivedAmount.Int64 != 450000 {
		t.Fatalf("expected received_amount 450000, got %+v", stored.ReceivedAmount)
	}
}

func TestReconcileOverpayCreditsRequestedAmount(t *testing.T) {
	repo := newRepoStub()
	ls := newLedgerStub()
	svc := newTestService(repo, ls)

	_, userID := seedPending(t, repo, "DD66666666", 200000)

	outcome, err := svc.Reconcile(context.Background(), topup.BankNotification{
		TransactionID: "bank-tx-5",
		Amount:        250000,
		Description:   "DD66666666",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != topup.OutcomeCredited {
		t.Fatalf("expected credited, got %s", outcome)
	}
	if got := ls.balance(userID); got != 200000 {
		t.Fatalf("overpay must credit the requested amount, balance is %d", got)
	}
}

func TestRecoverySweepFinishesDeferredCredit(t *testing.T) {
	repo := newRepoStub()
	ls := newLedgerStub()
	svc := newTestService(repo, ls)
	ctx := context.Background()

	_, userID := seedPending(t, repo, "DD77777777", 300000)

	ls.failCredit = true
	outcome, err := svc.Reconcile(ctx, topup.BankNotification{
		TransactionID: "bank-tx-6",
		Amount:        300000,
		Description:   "DD77777777",
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if outcome != topup.OutcomeConfirmed {
		t.Fatalf("expected confirmed with deferred credit, got %s", outcome)
	}
	if got := ls.balance(userID); got != 0 {
		t.Fatalf("credit should have been deferred, balance is %d", got)
	}

	ls.failCredit = false
	affected, err := svc.SweepRecover(ctx)
	if err != nil {
		t.Fatalf("recovery sweep failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 recovered topup, got %d", affected)
	}
	if got := ls.balance(userID); got != 300000 {
		t.Fatalf("expected balance 300000 after recovery, got %d", got)
	}

	affected, err = svc.SweepRecover(ctx)
	if err != nil {
		t.Fatalf("second recovery sweep failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("second sweep must find nothing, got %d", affected)
	}
}

func TestSweepExpireAffectsEachRowOnce(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo, newLedgerStub())
	ctx := context.Background()

	req, _ := seedPending(t, repo, "DD88888888", 100000)
	repo.mu.Lock()
	repo.topups[req.ID].ExpiresAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()

	affected, err := svc.SweepExpire(ctx)
	if err != nil {
		t.Fatalf("expire sweep failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 expired topup, got %d", affected)
	}

	affected, err = svc.SweepExpire(ctx)
	if err != nil {
		t.Fatalf("second expire sweep failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("second sweep must find nothing, got %d", affected)
	}
}

func TestCancelOnlyOnce(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo, newLedgerStub())
	ctx := context.Background()

	req, userID := seedPending(t, repo, "DD12121212", 100000)

	if err := svc.Cancel(ctx, req.ID, userID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := svc.Cancel(ctx, req.ID, userID); !errors.Is(err, topup.ErrNotPending) {
		t.Fatalf("expected ErrNotPending on second cancel, got %v", err)
	}
	if err := svc.Cancel(ctx, req.ID, uuid.New()); !errors.Is(err, topup.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
}
