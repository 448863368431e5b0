package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// recordQueueEvent appends to the entry's hash-chained audit trail and
// writes the matching outbox event, inside the caller's transaction.
func (s *Store) recordQueueEvent(ctx context.Context, tx pgx.Tx, eventType string, entry models.QueueEntry, actor, reason string) error {
	payload := store.EventPayload{
		EntryID:     entry.EntryID,
		PatientID:   entry.PatientID,
		BranchID:    entry.BranchID,
		QueueDate:   entry.QueueDate,
		QueueNumber: entry.QueueNumber,
		Status:      entry.Status,
		Actor:       actor,
		Reason:      reason,
	}
	if entry.AppointmentID != nil {
		payload.AppointmentID = *entry.AppointmentID
	}
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}
	if err := insertQueueEvent(ctx, tx, entry.EntryID, eventType, payloadJSON); err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, entry.BranchID, eventType, payloadJSON)
}

func insertQueueEvent(ctx context.Context, tx pgx.Tx, entryID, eventType string, payload []byte) error {
	var lastSeq int
	var prevHash string
	row := tx.QueryRow(ctx, `
		SELECT entry_seq, hash
		FROM queue_events
		WHERE entry_id = $1
		ORDER BY entry_seq DESC
		LIMIT 1
	`, entryID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		lastSeq = 0
		prevHash = ""
	}

	// Truncate to the database's timestamp precision so the stored hash
	// still verifies against the row as read back.
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	seq := lastSeq + 1
	hash := store.ComputeEventHash(prevHash, entryID, eventType, payload, createdAt, seq)

	_, err := tx.Exec(ctx, `
		INSERT INTO queue_events (entry_id, entry_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entryID, seq, eventType, payload, createdAt, prevHash, hash)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, branchID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, branch_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), branchID, eventType, payload, time.Now().UTC())
	return err
}

func (s *Store) ListEntryEvents(ctx context.Context, entryID string) ([]store.QueueEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, entry_seq, type, payload, created_at, prev_hash, hash
		FROM queue_events
		WHERE entry_id = $1
		ORDER BY entry_seq ASC
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.QueueEvent
	for rows.Next() {
		var event store.QueueEvent
		var payload json.RawMessage
		if err := rows.Scan(&event.EntryID, &event.EntrySeq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, branch_id, type, payload_json, created_at
		FROM outbox_events
	`
	args := []any{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.BranchID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
