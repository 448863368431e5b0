package models

import "time"

type QueueEntry struct {
	EntryID              string     `json:"entry_id"`
	RequestID            string     `json:"request_id"`
	PatientID            string     `json:"patient_id"`
	AppointmentID        *string    `json:"appointment_id,omitempty"`
	BranchID             string     `json:"branch_id"`
	QueueDate            string     `json:"queue_date"`
	QueueNumber          int        `json:"queue_number"`
	Status               string     `json:"status"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ServingAt            *time.Time `json:"serving_at,omitempty"`
	ScheduledAt          *time.Time `json:"scheduled_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusServing   = "serving"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// Active reports whether the entry still occupies a slot in the day's line.
func (e QueueEntry) Active() bool {
	return e.Status == StatusWaiting || e.Status == StatusServing
}
