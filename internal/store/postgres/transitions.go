package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CallEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	return s.applyTransition(ctx, input, "call")
}

func (s *Store) CompleteEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	return s.applyTransition(ctx, input, "complete")
}

func (s *Store) CancelEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	return s.applyTransition(ctx, input, "cancel")
}

func (s *Store) RejectEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	return s.applyTransition(ctx, input, "reject")
}

// applyTransition runs one status transition as a conditional update:
// the WHERE clause enforces the transition table, so a stale or replayed
// action can never overwrite a terminal state.
func (s *Store) applyTransition(ctx context.Context, input store.TransitionInput, action string) (models.QueueEntry, bool, error) {
	target := store.TargetStatus(action)
	if target == "" {
		return models.QueueEntry{}, false, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.QueueEntry{}, false, err
		}
		return existing, false, nil
	}

	occurred := occurredOrNow(input.OccurredAt)
	query := `
		UPDATE queue_entries
		SET status = $1, updated_at = $2
		WHERE entry_id = $3 AND status = ANY($4)
		RETURNING entry_id, request_id, patient_id, appointment_id, branch_id,
			queue_date::text, queue_number, status, estimated_wait_minutes,
			created_at, updated_at, serving_at
	`
	if action == "call" {
		// Starting service freezes the elapsed-wait computation.
		query = `
			UPDATE queue_entries
			SET status = $1, updated_at = $2, serving_at = $2
			WHERE entry_id = $3 AND status = ANY($4)
			RETURNING entry_id, request_id, patient_id, appointment_id, branch_id,
				queue_date::text, queue_number, status, estimated_wait_minutes,
				created_at, updated_at, serving_at
		`
	}

	entry, err := scanTransitionRow(tx.QueryRow(ctx, query, target, occurred, input.EntryID, store.AllowedFrom(action)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, stateErr := entryExists(ctx, tx, input.EntryID)
			if stateErr != nil {
				err = stateErr
				return models.QueueEntry{}, false, err
			}
			if !exists {
				err = store.ErrEntryNotFound
				return models.QueueEntry{}, false, err
			}
			err = store.ErrInvalidState
			return models.QueueEntry{}, false, err
		}
		return models.QueueEntry{}, false, err
	}

	if action == "complete" && (input.ServiceName != "" || input.Notes != "") {
		_, err = tx.Exec(ctx, `
			INSERT INTO treatments (treatment_id, entry_id, patient_id, branch_id, service_name, notes, performed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.NewString(), entry.EntryID, entry.PatientID, entry.BranchID,
			input.ServiceName, input.Notes, occurred)
		if err != nil {
			return models.QueueEntry{}, false, err
		}
	}

	if err = insertActionRequest(ctx, tx, action, input.RequestID, entry.EntryID); err != nil {
		return models.QueueEntry{}, false, err
	}
	if err = s.recordQueueEvent(ctx, tx, "queue."+target, entry, input.Actor, input.Reason); err != nil {
		return models.QueueEntry{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func scanTransitionRow(row rowScanner) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var appointmentIDNull sql.NullString
	var servingAtNull sql.NullTime
	err := row.Scan(
		&entry.EntryID, &entry.RequestID, &entry.PatientID, &appointmentIDNull,
		&entry.BranchID, &entry.QueueDate, &entry.QueueNumber, &entry.Status,
		&entry.EstimatedWaitMinutes, &entry.CreatedAt, &entry.UpdatedAt,
		&servingAtNull,
	)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if appointmentIDNull.Valid {
		entry.AppointmentID = &appointmentIDNull.String
	}
	if servingAtNull.Valid {
		serving := servingAtNull.Time
		entry.ServingAt = &serving
	}
	return entry, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.QueueEntry, bool, error) {
	var entryID string
	row := tx.QueryRow(ctx, `
		SELECT entry_id
		FROM action_requests
		WHERE action = $1 AND request_id = $2
	`, action, requestID)
	if err := row.Scan(&entryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}

	entryRow := tx.QueryRow(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.entry_id = $1
	`, entryID)
	entry, err := scanEntry(entryRow)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, entryID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, entry_id)
		VALUES ($1, $2, $3)
	`, action, requestID, entryID)
	return err
}

func entryExists(ctx context.Context, tx pgx.Tx, entryID string) (bool, error) {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM queue_entries WHERE entry_id = $1)
	`, entryID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
