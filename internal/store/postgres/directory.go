package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	if patient.PatientID == "" {
		patient.PatientID = uuid.NewString()
	}
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO patients (patient_id, first_name, last_name, phone, email, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, patient.PatientID, patient.FirstName, patient.LastName, patient.Phone,
		patient.Email, patient.BirthDate, patient.CreatedAt)
	if err != nil {
		return models.Patient{}, err
	}
	return patient, nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, bool, error) {
	var patient models.Patient
	var birthDateNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT patient_id, first_name, last_name, phone, email, birth_date, created_at
		FROM patients
		WHERE patient_id = $1
	`, patientID)
	err := row.Scan(&patient.PatientID, &patient.FirstName, &patient.LastName,
		&patient.Phone, &patient.Email, &birthDateNull, &patient.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, false, nil
		}
		return models.Patient{}, false, err
	}
	if birthDateNull.Valid {
		birthDate := birthDateNull.Time
		patient.BirthDate = &birthDate
	}
	return patient, true, nil
}

func (s *Store) ListPatients(ctx context.Context, limit int) ([]models.Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT patient_id, first_name, last_name, phone, email, birth_date, created_at
		FROM patients
		ORDER BY last_name ASC, first_name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		var patient models.Patient
		var birthDateNull sql.NullTime
		if err := rows.Scan(&patient.PatientID, &patient.FirstName, &patient.LastName,
			&patient.Phone, &patient.Email, &birthDateNull, &patient.CreatedAt); err != nil {
			return nil, err
		}
		if birthDateNull.Valid {
			birthDate := birthDateNull.Time
			patient.BirthDate = &birthDate
		}
		patients = append(patients, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return patients, nil
}

func (s *Store) CreateAppointment(ctx context.Context, appointment models.Appointment) (models.Appointment, error) {
	if appointment.AppointmentID == "" {
		appointment.AppointmentID = uuid.NewString()
	}
	if appointment.Status == "" {
		appointment.Status = models.AppointmentScheduled
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (appointment_id, patient_id, branch_id, service_name, scheduled_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, appointment.AppointmentID, appointment.PatientID, appointment.BranchID,
		appointment.ServiceName, appointment.ScheduledAt, appointment.Status, appointment.CreatedAt)
	if err != nil {
		return models.Appointment{}, err
	}
	return appointment, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error) {
	var appt models.Appointment
	row := s.pool.QueryRow(ctx, `
		SELECT appointment_id, patient_id, branch_id, service_name, scheduled_at, status, created_at
		FROM appointments
		WHERE appointment_id = $1
	`, appointmentID)
	err := row.Scan(&appt.AppointmentID, &appt.PatientID, &appt.BranchID,
		&appt.ServiceName, &appt.ScheduledAt, &appt.Status, &appt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, false, nil
		}
		return models.Appointment{}, false, err
	}
	return appt, true, nil
}

func (s *Store) ListAppointments(ctx context.Context, branchID string, day clock.CivilDate) ([]models.Appointment, error) {
	start, end := clock.DayBounds(day)
	rows, err := s.pool.Query(ctx, `
		SELECT appointment_id, patient_id, branch_id, service_name, scheduled_at, status, created_at
		FROM appointments
		WHERE branch_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, branchID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		var appt models.Appointment
		if err := rows.Scan(&appt.AppointmentID, &appt.PatientID, &appt.BranchID,
			&appt.ServiceName, &appt.ScheduledAt, &appt.Status, &appt.CreatedAt); err != nil {
			return nil, err
		}
		appointments = append(appointments, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appointments, nil
}

func (s *Store) ConfirmAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	var appt models.Appointment
	row := s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed'
		WHERE appointment_id = $1 AND status IN ('scheduled', 'confirmed')
		RETURNING appointment_id, patient_id, branch_id, service_name, scheduled_at, status, created_at
	`, appointmentID)
	err := row.Scan(&appt.AppointmentID, &appt.PatientID, &appt.BranchID,
		&appt.ServiceName, &appt.ScheduledAt, &appt.Status, &appt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, found, lookupErr := s.GetAppointment(ctx, appointmentID)
			if lookupErr != nil {
				return models.Appointment{}, lookupErr
			}
			if !found {
				return models.Appointment{}, store.ErrAppointmentNotFound
			}
			return models.Appointment{}, store.ErrAppointmentClosed
		}
		return models.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT branch_id, name, COALESCE(hours_json::text, ''), active
		FROM branches
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		var branch models.Branch
		if err := rows.Scan(&branch.BranchID, &branch.Name, &branch.HoursJSON, &branch.Active); err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) ListTreatments(ctx context.Context, patientID string) ([]models.Treatment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT treatment_id, entry_id, patient_id, branch_id, service_name, notes, performed_at
		FROM treatments
		WHERE patient_id = $1
		ORDER BY performed_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var treatments []models.Treatment
	for rows.Next() {
		var treatment models.Treatment
		if err := rows.Scan(&treatment.TreatmentID, &treatment.EntryID, &treatment.PatientID,
			&treatment.BranchID, &treatment.ServiceName, &treatment.Notes, &treatment.PerformedAt); err != nil {
			return nil, err
		}
		treatments = append(treatments, treatment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return treatments, nil
}
