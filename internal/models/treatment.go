package models

import "time"

type Treatment struct {
	TreatmentID string    `json:"treatment_id"`
	EntryID     string    `json:"entry_id"`
	PatientID   string    `json:"patient_id"`
	BranchID    string    `json:"branch_id"`
	ServiceName string    `json:"service_name,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	PerformedAt time.Time `json:"performed_at"`
}
