package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"
)

type createPatientRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	BirthDate string `json:"birth_date"`
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreatePatient(w, r)
	case http.MethodGet:
		h.handleListPatients(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.BirthDate = strings.TrimSpace(req.BirthDate)

	if req.FirstName == "" || req.LastName == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "first_name and last_name are required")
		return
	}

	patient := models.Patient{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
	}
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "birth_date must be YYYY-MM-DD")
			return
		}
		patient.BirthDate = &parsed
	}

	created, err := h.directory.CreatePatient(r.Context(), patient)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	patients, err := h.directory.ListPatients(r.Context(), limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handler) handlePatientSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/patients/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		h.handleGetPatient(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "treatments":
		h.handlePatientTreatments(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetPatient(w http.ResponseWriter, r *http.Request, patientID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(patientID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}

	patient, found, err := h.directory.GetPatient(r.Context(), patientID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		writeError(w, "", http.StatusNotFound, "patient_not_found", "patient not found")
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handlePatientTreatments(w http.ResponseWriter, r *http.Request, patientID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(patientID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}

	treatments, err := h.directory.ListTreatments(r.Context(), patientID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, treatments)
}

type createAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	BranchID    string `json:"branch_id"`
	ServiceName string `json:"service_name"`
	ScheduledAt string `json:"scheduled_at"`
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateAppointment(w, r)
	case http.MethodGet:
		h.handleListAppointments(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.ScheduledAt = strings.TrimSpace(req.ScheduledAt)

	if req.PatientID == "" || req.BranchID == "" || req.ScheduledAt == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "patient_id, branch_id, and scheduled_at are required")
		return
	}
	if !isValidUUID(req.PatientID) || !isValidUUID(req.BranchID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "patient_id and branch_id must be UUIDs")
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "scheduled_at must be RFC3339 timestamp")
		return
	}

	created, err := h.directory.CreateAppointment(r.Context(), models.Appointment{
		PatientID:   req.PatientID,
		BranchID:    req.BranchID,
		ServiceName: req.ServiceName,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "branch_id is required")
		return
	}
	if !isValidUUID(branchID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "branch_id must be a UUID")
		return
	}

	day, ok := h.queryDay(w, r)
	if !ok {
		return
	}

	appointments, err := h.directory.ListAppointments(r.Context(), branchID, day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, appointments)
}

func (h *Handler) handleAppointmentSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/appointments/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		h.handleGetAppointment(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "confirm":
		h.handleConfirmAppointment(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetAppointment(w http.ResponseWriter, r *http.Request, appointmentID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(appointmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "appointment_id must be a UUID")
		return
	}

	appointment, found, err := h.directory.GetAppointment(r.Context(), appointmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		writeError(w, "", http.StatusNotFound, "appointment_not_found", "appointment not found")
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

type confirmAppointmentRequest struct {
	RequestID string `json:"request_id"`
	Actor     string `json:"actor"`
}

// handleConfirmAppointment confirms the appointment and immediately runs an
// admission attempt for it. When the appointment is for a future day the
// confirmation sticks and the admission reports not_today.
func (h *Handler) handleConfirmAppointment(w http.ResponseWriter, r *http.Request, appointmentID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(appointmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "appointment_id must be a UUID")
		return
	}

	var req confirmAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	if _, err := h.directory.ConfirmAppointment(r.Context(), appointmentID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	result, err := h.admitter.Admit(r.Context(), store.AdmitInput{
		RequestID:     req.RequestID,
		AppointmentID: appointmentID,
		Actor:         strings.TrimSpace(req.Actor),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	branches, err := h.directory.ListBranches(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}
