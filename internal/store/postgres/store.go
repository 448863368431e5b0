package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool              *pgxpool.Pool
	minutesPerPatient int
}

type Options struct {
	// MinutesPerPatient drives the advisory estimated_wait_minutes field.
	MinutesPerPatient int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	minutes := options.MinutesPerPatient
	if minutes <= 0 {
		minutes = 15
	}
	return &Store{
		pool:              pool,
		minutesPerPatient: minutes,
	}
}

const entryColumns = `
	e.entry_id, e.request_id, e.patient_id, e.appointment_id, e.branch_id,
	e.queue_date::text, e.queue_number, e.status, e.estimated_wait_minutes,
	e.created_at, e.updated_at, e.serving_at, a.scheduled_at
`

const entryFrom = `
	FROM queue_entries e
	LEFT JOIN appointments a ON a.appointment_id = e.appointment_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var appointmentIDNull sql.NullString
	var servingAtNull sql.NullTime
	var scheduledAtNull sql.NullTime
	err := row.Scan(
		&entry.EntryID, &entry.RequestID, &entry.PatientID, &appointmentIDNull,
		&entry.BranchID, &entry.QueueDate, &entry.QueueNumber, &entry.Status,
		&entry.EstimatedWaitMinutes, &entry.CreatedAt, &entry.UpdatedAt,
		&servingAtNull, &scheduledAtNull,
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
	if scheduledAtNull.Valid {
		scheduled := scheduledAtNull.Time
		entry.ScheduledAt = &scheduled
	}
	return entry, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.entry_id = $1
	`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) ActiveEntryFor(ctx context.Context, patientID string, day clock.CivilDate) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.patient_id = $1 AND e.queue_date = $2::date
			AND e.status IN ('waiting', 'serving')
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

func (s *Store) ListDay(ctx context.Context, branchID string, day clock.CivilDate) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+entryFrom+`
		WHERE e.branch_id = $1 AND e.queue_date = $2::date
		ORDER BY e.queue_number ASC
	`, branchID, day.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) DailyStats(ctx context.Context, branchID string, day clock.CivilDate) (store.DailyStats, error) {
	stats := store.DailyStats{BranchID: branchID, QueueDate: day.String()}
	row := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'waiting'),
			COUNT(*) FILTER (WHERE status = 'serving'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (serving_at - created_at)) / 60.0)
				FILTER (WHERE serving_at IS NOT NULL), 0)
		FROM queue_entries
		WHERE branch_id = $1 AND queue_date = $2::date
	`, branchID, day.String())
	err := row.Scan(&stats.Total, &stats.Waiting, &stats.Serving, &stats.Completed,
		&stats.Cancelled, &stats.Rejected, &stats.AvgWaitMinutes)
	if err != nil {
		return store.DailyStats{}, err
	}
	return stats, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func jsonBytes(payload any) ([]byte, error) {
	return json.Marshal(payload)
}

func occurredOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
