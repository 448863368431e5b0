package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/queue"
	"dcms/clinic-service/internal/store"

	"github.com/google/uuid"
)

// Admitter is the admission front door. The HTTP layer never talks to the
// queue store's Admit directly; retries live behind this interface.
type Admitter interface {
	Admit(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error)
	Deduplicate(ctx context.Context, actor string) (int, error)
}

type Handler struct {
	admitter  Admitter
	queue     store.QueueStore
	directory store.DirectoryStore
	clock     clock.Clock
}

func NewHandler(admitter Admitter, queueStore store.QueueStore, directory store.DirectoryStore, clk clock.Clock) *Handler {
	return &Handler{
		admitter:  admitter,
		queue:     queueStore,
		directory: directory,
		clock:     clk,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/active", h.handleActiveEntry)
	mux.HandleFunc("/api/queue/actions/deduplicate", h.handleDeduplicate)
	mux.HandleFunc("/api/queue/", h.handleEntrySubpaths)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/stats/daily", h.handleDailyStats)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/patients/", h.handlePatientSubpaths)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/appointments/", h.handleAppointmentSubpaths)
	mux.HandleFunc("/api/branches", h.handleBranches)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type admitRequest struct {
	RequestID     string `json:"request_id"`
	PatientID     string `json:"patient_id"`
	BranchID      string `json:"branch_id"`
	AppointmentID string `json:"appointment_id"`
	Actor         string `json:"actor"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleAdmit(w, r)
	case http.MethodGet:
		h.handleBoard(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Actor = strings.TrimSpace(req.Actor)

	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.AppointmentID == "" {
		if req.PatientID == "" || req.BranchID == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "patient_id and branch_id are required for walk-ins")
			return
		}
		if !isValidUUID(req.PatientID) || !isValidUUID(req.BranchID) {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "patient_id and branch_id must be UUIDs")
			return
		}
	} else if !isValidUUID(req.AppointmentID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "appointment_id must be a UUID")
		return
	}

	result, err := h.admitter.Admit(r.Context(), store.AdmitInput{
		RequestID:     req.RequestID,
		PatientID:     req.PatientID,
		BranchID:      req.BranchID,
		AppointmentID: req.AppointmentID,
		Actor:         req.Actor,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type boardEntry struct {
	models.QueueEntry
	WaitMinutes int `json:"wait_minutes"`
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.queue.ListDay(r.Context(), branchID, day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	now := time.Now().UTC()
	board := make([]boardEntry, 0, len(entries))
	for _, entry := range entries {
		board = append(board, boardEntry{
			QueueEntry:  entry,
			WaitMinutes: int(queue.WaitDuration(entry, now).Minutes()),
		})
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleActiveEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	patientID := strings.TrimSpace(r.URL.Query().Get("patient_id"))
	if patientID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "patient_id is required")
		return
	}
	if !isValidUUID(patientID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
		return
	}

	day, ok := h.queryDay(w, r)
	if !ok {
		return
	}

	entry, found, err := h.queue.ActiveEntryFor(r.Context(), patientID, day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type deduplicateRequest struct {
	Actor string `json:"actor"`
}

func (h *Handler) handleDeduplicate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req deduplicateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "admin"
	}

	removed, err := h.admitter.Deduplicate(r.Context(), actor)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed_count": removed})
}

func (h *Handler) handleEntrySubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "events":
		h.handleEntryEvents(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleEntryAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleEntryEvents(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	events, err := h.queue.ListEntryEvents(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type entryActionRequest struct {
	RequestID   string `json:"request_id"`
	Actor       string `json:"actor"`
	Reason      string `json:"reason"`
	ServiceName string `json:"service_name"`
	Notes       string `json:"notes"`
}

func (h *Handler) handleEntryAction(w http.ResponseWriter, r *http.Request, entryID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	var req entryActionRequest
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

	input := store.TransitionInput{
		RequestID:   req.RequestID,
		EntryID:     entryID,
		Actor:       strings.TrimSpace(req.Actor),
		Reason:      strings.TrimSpace(req.Reason),
		ServiceName: strings.TrimSpace(req.ServiceName),
		Notes:       strings.TrimSpace(req.Notes),
		OccurredAt:  time.Now().UTC(),
	}

	var (
		entry models.QueueEntry
		err   error
	)
	switch action {
	case "call":
		entry, _, err = h.queue.CallEntry(r.Context(), input)
	case "complete":
		entry, _, err = h.queue.CompleteEntry(r.Context(), input)
	case "cancel":
		entry, _, err = h.queue.CancelEntry(r.Context(), input)
	case "reject":
		entry, _, err = h.queue.RejectEntry(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.queue.ListOutboxEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

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

	stats, err := h.queue.DailyStats(r.Context(), branchID, day)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// queryDay resolves the optional date query parameter, defaulting to the
// clinic's current civil day.
func (h *Handler) queryDay(w http.ResponseWriter, r *http.Request) (clock.CivilDate, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return h.clock.Today(), true
	}
	day, err := clock.ParseCivilDate(raw)
	if err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return clock.CivilDate{}, false
	}
	return day, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrAppointmentClosed):
		return http.StatusConflict, "appointment_closed", "appointment is cancelled or completed"
	case errors.Is(err, store.ErrBranchNotFound):
		return http.StatusNotFound, "branch_not_found", "branch not found"
	case errors.Is(err, store.ErrBranchClosed):
		return http.StatusConflict, "branch_closed", "branch is closed on this day"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "entry state does not allow this action"
	case errors.Is(err, store.ErrDuplicateEntry):
		return http.StatusConflict, "duplicate_entry", "patient already holds an active entry"
	case errors.Is(err, store.ErrConflictExhausted):
		return http.StatusServiceUnavailable, "conflict_exhausted", "could not resolve admission conflict, retry"
	case errors.Is(err, store.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable", "backend unavailable, retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
