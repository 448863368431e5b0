package store

import (
	"context"
	"encoding/json"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"
)

// AdmitInput describes one admission attempt. RequestID is the caller's
// idempotency key: replaying the same request returns the original outcome.
type AdmitInput struct {
	RequestID     string
	PatientID     string
	AppointmentID string
	BranchID      string
	Actor         string
	Day           clock.CivilDate
	CreatedAt     time.Time
}

// Admission outcomes. NotToday and AlreadyExists are results, not errors.
const (
	AdmitAdded         = "added"
	AdmitLinked        = "linked"
	AdmitAlreadyExists = "already_exists"
	AdmitNotToday      = "not_today"
)

type AdmitResult struct {
	Action  string            `json:"action"`
	Entry   models.QueueEntry `json:"entry"`
	Message string            `json:"message,omitempty"`
}

type TransitionInput struct {
	RequestID   string
	EntryID     string
	BranchID    string
	Actor       string
	Reason      string
	ServiceName string
	Notes       string
	OccurredAt  time.Time
}

type DailyStats struct {
	BranchID       string  `json:"branch_id"`
	QueueDate      string  `json:"queue_date"`
	Total          int     `json:"total"`
	Waiting        int     `json:"waiting"`
	Serving        int     `json:"serving"`
	Completed      int     `json:"completed"`
	Cancelled      int     `json:"cancelled"`
	Rejected       int     `json:"rejected"`
	AvgWaitMinutes float64 `json:"avg_wait_minutes"`
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	BranchID  string          `json:"branch_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// QueueStore is the queue subsystem's persistence contract. Every mutation
// is a single transaction: number assignment, row change, audit event, and
// outbox event commit together or not at all.
type QueueStore interface {
	Admit(ctx context.Context, input AdmitInput) (AdmitResult, error)
	ActiveEntryFor(ctx context.Context, patientID string, day clock.CivilDate) (models.QueueEntry, bool, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error)
	ListDay(ctx context.Context, branchID string, day clock.CivilDate) ([]models.QueueEntry, error)
	CallEntry(ctx context.Context, input TransitionInput) (models.QueueEntry, bool, error)
	CompleteEntry(ctx context.Context, input TransitionInput) (models.QueueEntry, bool, error)
	CancelEntry(ctx context.Context, input TransitionInput) (models.QueueEntry, bool, error)
	RejectEntry(ctx context.Context, input TransitionInput) (models.QueueEntry, bool, error)
	Deduplicate(ctx context.Context, day clock.CivilDate, actor string) (int, error)
	ListEntryEvents(ctx context.Context, entryID string) ([]QueueEvent, error)
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	DailyStats(ctx context.Context, branchID string, day clock.CivilDate) (DailyStats, error)
}

// DirectoryStore covers the supporting records the queue references.
type DirectoryStore interface {
	CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error)
	GetPatient(ctx context.Context, patientID string) (models.Patient, bool, error)
	ListPatients(ctx context.Context, limit int) ([]models.Patient, error)
	CreateAppointment(ctx context.Context, appointment models.Appointment) (models.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error)
	ListAppointments(ctx context.Context, branchID string, day clock.CivilDate) ([]models.Appointment, error)
	ConfirmAppointment(ctx context.Context, appointmentID string) (models.Appointment, error)
	ListBranches(ctx context.Context) ([]models.Branch, error)
	ListTreatments(ctx context.Context, patientID string) ([]models.Treatment, error)
}
