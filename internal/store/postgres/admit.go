package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Admit performs one admission as a single transaction: number assignment,
// row insert (or appointment link), audit event, and outbox event commit
// together. On a uniqueness conflict the lookup is re-run once against the
// surviving row before the conflict is surfaced.
func (s *Store) Admit(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
	result, err := s.admitOnce(ctx, input)
	if err != nil && isUniqueViolation(err) {
		return s.admitRecheck(ctx, input)
	}
	return result, err
}

func (s *Store) admitOnce(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.AdmitResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findEntryByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return store.AdmitResult{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return store.AdmitResult{}, err
		}
		return store.AdmitResult{
			Action:  store.AdmitAlreadyExists,
			Entry:   existing,
			Message: "request already processed",
		}, nil
	}

	patientID := input.PatientID
	branchID := input.BranchID
	var scheduledAt time.Time
	if input.AppointmentID != "" {
		appt, apptErr := getAppointmentTx(ctx, tx, input.AppointmentID)
		if apptErr != nil {
			err = apptErr
			return store.AdmitResult{}, err
		}
		if clock.DateOf(appt.ScheduledAt) != input.Day {
			if err = tx.Commit(ctx); err != nil {
				return store.AdmitResult{}, err
			}
			return store.AdmitResult{
				Action:  store.AdmitNotToday,
				Message: "appointment is not scheduled for today",
			}, nil
		}
		scheduledAt = appt.ScheduledAt
		if patientID == "" {
			patientID = appt.PatientID
		}
		if branchID == "" {
			branchID = appt.BranchID
		}
	}

	if err = ensureBranchOpen(ctx, tx, branchID, input.Day); err != nil {
		return store.AdmitResult{}, err
	}
	if err = ensurePatientExists(ctx, tx, patientID); err != nil {
		return store.AdmitResult{}, err
	}

	active, activeFound, err := activeEntryForUpdate(ctx, tx, patientID, input.Day)
	if err != nil {
		return store.AdmitResult{}, err
	}
	if activeFound {
		result, linkErr := s.linkOrReport(ctx, tx, active, input)
		if linkErr != nil {
			err = linkErr
			return store.AdmitResult{}, err
		}
		if err = tx.Commit(ctx); err != nil {
			return store.AdmitResult{}, err
		}
		return result, nil
	}

	seq, err := nextQueueNumber(ctx, tx, branchID, input.Day)
	if err != nil {
		return store.AdmitResult{}, err
	}

	var waitingAhead int
	row := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM queue_entries
		WHERE branch_id = $1 AND queue_date = $2::date AND status = 'waiting'
	`, branchID, input.Day.String())
	if err = row.Scan(&waitingAhead); err != nil {
		return store.AdmitResult{}, err
	}
	estimate := waitingAhead * s.minutesPerPatient

	createdAt := occurredOrNow(input.CreatedAt)
	entryID := uuid.NewString()
	var entry models.QueueEntry
	insertRow := tx.QueryRow(ctx, `
		INSERT INTO queue_entries (
			entry_id, request_id, patient_id, appointment_id, branch_id,
			queue_date, queue_number, status, estimated_wait_minutes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $10)
		RETURNING entry_id, request_id, patient_id, branch_id, queue_date::text,
			queue_number, status, estimated_wait_minutes, created_at, updated_at
	`, entryID, input.RequestID, patientID, nullIfEmpty(input.AppointmentID), branchID,
		input.Day.String(), seq, models.StatusWaiting, estimate, createdAt)
	if err = insertRow.Scan(
		&entry.EntryID, &entry.RequestID, &entry.PatientID, &entry.BranchID,
		&entry.QueueDate, &entry.QueueNumber, &entry.Status,
		&entry.EstimatedWaitMinutes, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return store.AdmitResult{}, err
	}
	if input.AppointmentID != "" {
		appointmentID := input.AppointmentID
		entry.AppointmentID = &appointmentID
		entry.ScheduledAt = &scheduledAt
	}

	if err = s.recordQueueEvent(ctx, tx, "queue.added", entry, input.Actor, ""); err != nil {
		return store.AdmitResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.AdmitResult{}, err
	}
	return store.AdmitResult{Action: store.AdmitAdded, Entry: entry}, nil
}

// linkOrReport handles an admission that found an active entry already
// holding the patient's slot for the day.
func (s *Store) linkOrReport(ctx context.Context, tx pgx.Tx, active models.QueueEntry, input store.AdmitInput) (store.AdmitResult, error) {
	if input.AppointmentID == "" || active.AppointmentID != nil {
		message := ""
		if active.AppointmentID != nil && input.AppointmentID != "" && *active.AppointmentID != input.AppointmentID {
			message = "active entry is linked to a different appointment"
		}
		return store.AdmitResult{
			Action:  store.AdmitAlreadyExists,
			Entry:   active,
			Message: message,
		}, nil
	}

	// Active walk-in entry, admission carries an appointment: attach the
	// appointment to the existing slot instead of inserting a second one.
	tag, err := tx.Exec(ctx, `
		UPDATE queue_entries
		SET appointment_id = $1
		WHERE entry_id = $2 AND appointment_id IS NULL
	`, input.AppointmentID, active.EntryID)
	if err != nil {
		return store.AdmitResult{}, err
	}
	if tag.RowsAffected() == 0 {
		return store.AdmitResult{Action: store.AdmitAlreadyExists, Entry: active}, nil
	}
	appointmentID := input.AppointmentID
	active.AppointmentID = &appointmentID

	if err := s.recordQueueEvent(ctx, tx, "queue.linked", active, input.Actor, ""); err != nil {
		return store.AdmitResult{}, err
	}
	return store.AdmitResult{Action: store.AdmitLinked, Entry: active}, nil
}

// admitRecheck re-runs the membership lookup after a uniqueness conflict:
// a concurrent admission won the race, so its row explains this one.
func (s *Store) admitRecheck(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
	entry, found, err := s.entryByRequestID(ctx, input.RequestID)
	if err != nil {
		return store.AdmitResult{}, err
	}
	if found {
		return store.AdmitResult{
			Action:  store.AdmitAlreadyExists,
			Entry:   entry,
			Message: "request already processed",
		}, nil
	}

	patientID := input.PatientID
	if patientID == "" && input.AppointmentID != "" {
		appt, apptFound, apptErr := s.GetAppointment(ctx, input.AppointmentID)
		if apptErr != nil {
			return store.AdmitResult{}, apptErr
		}
		if !apptFound {
			return store.AdmitResult{}, store.ErrAppointmentNotFound
		}
		patientID = appt.PatientID
	}

	active, activeFound, err := s.ActiveEntryFor(ctx, patientID, input.Day)
	if err != nil {
		return store.AdmitResult{}, err
	}
	if activeFound {
		return store.AdmitResult{Action: store.AdmitAlreadyExists, Entry: active}, nil
	}

	// No surviving row explains the conflict; likely a queue_number
	// collision with another branch-level admission. Caller retries.
	return store.AdmitResult{}, store.ErrDuplicateEntry
}

// nextQueueNumber atomically advances the per-branch per-day counter. The
// upsert keeps number assignment inside the admission transaction, so two
// concurrent admissions can never read the same value.
func nextQueueNumber(ctx context.Context, tx pgx.Tx, branchID string, day clock.CivilDate) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO queue_sequences (branch_id, queue_date, next_number)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (branch_id, queue_date)
		DO UPDATE SET next_number = queue_sequences.next_number + 1
		RETURNING next_number
	`, branchID, day.String())
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func findEntryByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.QueueEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.request_id = $1
	`, requestID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) entryByRequestID(ctx context.Context, requestID string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.request_id = $1
	`, requestID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func activeEntryForUpdate(ctx context.Context, tx pgx.Tx, patientID string, day clock.CivilDate) (models.QueueEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.patient_id = $1 AND e.queue_date = $2::date
			AND e.status IN ('waiting', 'serving')
		FOR UPDATE OF e
	`, patientID, day.String())
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func getAppointmentTx(ctx context.Context, tx pgx.Tx, appointmentID string) (models.Appointment, error) {
	var appt models.Appointment
	row := tx.QueryRow(ctx, `
		SELECT appointment_id, patient_id, branch_id, service_name, scheduled_at, status, created_at
		FROM appointments
		WHERE appointment_id = $1
	`, appointmentID)
	err := row.Scan(&appt.AppointmentID, &appt.PatientID, &appt.BranchID,
		&appt.ServiceName, &appt.ScheduledAt, &appt.Status, &appt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, store.ErrAppointmentNotFound
		}
		return models.Appointment{}, err
	}
	return appt, nil
}

func ensurePatientExists(ctx context.Context, tx pgx.Tx, patientID string) error {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patients WHERE patient_id = $1)
	`, patientID)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrPatientNotFound
	}
	return nil
}

func ensureBranchOpen(ctx context.Context, tx pgx.Tx, branchID string, day clock.CivilDate) error {
	var hoursJSON string
	var active bool
	row := tx.QueryRow(ctx, `
		SELECT COALESCE(hours_json::text, ''), active
		FROM branches
		WHERE branch_id = $1
	`, branchID)
	if err := row.Scan(&hoursJSON, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrBranchNotFound
		}
		return err
	}
	if !active || !branchOpenOn(hoursJSON, day.Weekday().String()) {
		return store.ErrBranchClosed
	}
	return nil
}

// branchOpenOn checks the per-weekday operating hours map, e.g.
// {"monday": "08:00-17:00", "saturday": "08:00-12:00"}. An absent or empty
// entry means closed; a branch without hours_json is always open.
func branchOpenOn(hoursJSON, weekday string) bool {
	if strings.TrimSpace(hoursJSON) == "" {
		return true
	}
	var hours map[string]string
	if err := json.Unmarshal([]byte(hoursJSON), &hours); err != nil {
		return true
	}
	window, ok := hours[strings.ToLower(weekday)]
	return ok && strings.TrimSpace(window) != ""
}
