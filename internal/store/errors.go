package store

import "errors"

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAppointmentClosed   = errors.New("appointment is cancelled or completed")
	ErrBranchNotFound      = errors.New("branch not found")
	ErrBranchClosed        = errors.New("branch is closed on this day")
	ErrEntryNotFound       = errors.New("queue entry not found")
	ErrInvalidState        = errors.New("entry state does not allow this action")
	ErrDuplicateEntry      = errors.New("duplicate active entry for patient")
	ErrConflictExhausted   = errors.New("conflict retries exhausted")
	ErrBackendUnavailable  = errors.New("backend unavailable")
)
