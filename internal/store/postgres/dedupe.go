package postgres

import (
	"context"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"

	"github.com/jackc/pgx/v5"
)

// Deduplicate is a repair tool, not a normal-path dependency: the unique
// constraints prevent duplicate active entries, so this only corrects
// damage that predates them or that slipped through an operator edit.
// For each patient holding more than one active slot on the day, every
// entry but the earliest-created is deleted; each removal leaves an audit
// record, which survives because queue_events has no FK on the entry row.
func (s *Store) Deduplicate(ctx context.Context, day clock.CivilDate, actor string) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.queue_date = $1::date AND e.status IN ('waiting', 'serving')
		ORDER BY e.patient_id, e.created_at ASC
		FOR UPDATE OF e
	`, day.String())
	if err != nil {
		return 0, err
	}

	var duplicates []models.QueueEntry
	seen := map[string]bool{}
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			rows.Close()
			err = scanErr
			return 0, err
		}
		if seen[entry.PatientID] {
			duplicates = append(duplicates, entry)
			continue
		}
		seen[entry.PatientID] = true
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, entry := range duplicates {
		if _, err = tx.Exec(ctx, `
			DELETE FROM queue_entries WHERE entry_id = $1
		`, entry.EntryID); err != nil {
			return 0, err
		}
		if err = s.recordQueueEvent(ctx, tx, "queue.deduplicated", entry, actor, "duplicate active entry removed"); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(duplicates), nil
}
