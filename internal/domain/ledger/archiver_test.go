package ledger_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/datban/datban-api/internal/domain/ledger"
)

type objectStoreStub struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{objects: make(map[string][]byte)}
}

func (s *objectStoreStub) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.puts++
	return nil
}

func (s *objectStoreStub) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func seedAgedTransactions(t *testing.T, db *sqlx.DB, age time.Duration, n int) {
	t.Helper()
	createdAt := time.Now().UTC().Add(-age)
	for i := 0; i < n; i++ {
		_, err := db.Exec(`
			INSERT INTO wallet_transactions (id, user_id, type, amount, related_id, created_at)
			VALUES ($1, $2, 'topup', 500000, $3, $4)
		`, uuid.New(), uuid.New(), uuid.New(), createdAt)
		if err != nil {
			t.Fatalf("seed transaction failed: %v", err)
		}
	}
}

func TestArchiveAgedDaysExportsEachDayOnce(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	defer db.Exec("DELETE FROM ledger_archive_days")

	store := newObjectStoreStub()
	archiver := ledger.NewArchiver(db, store, 24*time.Hour)
	ctx := context.Background()

	seedAgedTransactions(t, db, 10*24*time.Hour, 2)

	archived, err := archiver.ArchiveAgedDays(ctx)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if archived != 1 {
		t.Fatalf("expected 1 archived day, got %d", archived)
	}
	if store.puts != 1 {
		t.Fatalf("expected 1 upload, got %d", store.puts)
	}
	for key, data := range store.objects {
		if lines := bytes.Count(data, []byte("\n")); lines != 2 {
			t.Fatalf("expected 2 JSONL lines in %s, got %d", key, lines)
		}
	}

	// The day is claimed; a second run has nothing to do.
	archived, err = archiver.ArchiveAgedDays(ctx)
	if err != nil {
		t.Fatalf("second archive run failed: %v", err)
	}
	if archived != 0 || store.puts != 1 {
		t.Fatalf("second run must be a no-op, archived %d with %d uploads", archived, store.puts)
	}
}

func TestArchiveSkipsReuploadAfterLostClaim(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(db)
	defer db.Exec("DELETE FROM ledger_archive_days")

	store := newObjectStoreStub()
	archiver := ledger.NewArchiver(db, store, 24*time.Hour)
	ctx := context.Background()

	seedAgedTransactions(t, db, 10*24*time.Hour, 1)

	if _, err := archiver.ArchiveAgedDays(ctx); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	// Simulate a worker that uploaded but died before its claim committed.
	if _, err := db.Exec("DELETE FROM ledger_archive_days"); err != nil {
		t.Fatalf("drop claim failed: %v", err)
	}

	archived, err := archiver.ArchiveAgedDays(ctx)
	if err != nil {
		t.Fatalf("re-archive failed: %v", err)
	}
	if archived != 1 {
		t.Fatalf("expected the day to be re-claimed, got %d", archived)
	}
	if store.puts != 1 {
		t.Fatalf("existing object must not be re-uploaded, got %d uploads", store.puts)
	}
}
