package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/pkg/storage"
)

// Archiver exports aged transaction days to object storage as JSONL, one
// object per calendar day. Rows stay in Postgres; the export is a retention
// copy, not a move. A day is claimed in ledger_archive_days before upload so
// concurrent sweep workers export each day once.
type Archiver struct {
	db        *sqlx.DB
	store     storage.ObjectStore
	retention time.Duration
}

func NewArchiver(db *sqlx.DB, store storage.ObjectStore, retention time.Duration) *Archiver {
	return &Archiver{db: db, store: store, retention: retention}
}

// ArchiveAgedDays exports every unarchived day older than the retention
// window, oldest first, and returns how many days it exported. Bounded by
// the caller's context deadline; a partial run resumes next sweep.
func (a *Archiver) ArchiveAgedDays(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retention).Truncate(24 * time.Hour)

	var days []time.Time
	err := a.db.SelectContext(ctx, &days, `
		SELECT DISTINCT date_trunc('day', created_at) AS day
		FROM wallet_transactions
		WHERE created_at < $1
		  AND date_trunc('day', created_at) NOT IN (SELECT day FROM ledger_archive_days)
		ORDER BY day ASC
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unarchived days: %w", err)
	}

	archived := 0
	for _, day := range days {
		if ctx.Err() != nil {
			return archived, ctx.Err()
		}
		if err := a.archiveDay(ctx, day); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

func (a *Archiver) archiveDay(ctx context.Context, day time.Time) error {
	// The claim commits only after the upload succeeds, so a failed upload
	// leaves the day unclaimed for the next run.
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_archive_days (day, archived_at)
		VALUES ($1, now())
		ON CONFLICT (day) DO NOTHING
	`, day)
	if err != nil {
		return fmt.Errorf("claim day: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// Another worker got this day.
		return nil
	}

	key := fmt.Sprintf("ledger/%s.jsonl", day.Format("2006/01/02"))

	// A previous run may have uploaded this day and crashed before its claim
	// committed. The object is already there; just finish the claim.
	present, err := a.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}

	exported := 0
	if !present {
		var rows []*Transaction
		err = a.db.SelectContext(ctx, &rows, `
			SELECT id, user_id, type, amount, related_id, created_at
			FROM wallet_transactions
			WHERE created_at >= $1 AND created_at < $2
			ORDER BY created_at ASC
		`, day, day.Add(24*time.Hour))
		if err != nil {
			return fmt.Errorf("load day %s: %w", day.Format("2006-01-02"), err)
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("encode transaction %s: %w", row.ID, err)
			}
		}

		if err := a.store.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		exported = len(rows)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit day claim: %w", err)
	}

	log.Info().
		Str("key", key).
		Int("transactions", exported).
		Bool("already_uploaded", present).
		Msg("Archived ledger day")
	return nil
}
