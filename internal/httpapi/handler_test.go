package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"
)

type fakeAdmitter struct {
	admitFn  func(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error)
	dedupeFn func(ctx context.Context, actor string) (int, error)
}

func (f fakeAdmitter) Admit(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
	if f.admitFn == nil {
		return store.AdmitResult{}, nil
	}
	return f.admitFn(ctx, input)
}

func (f fakeAdmitter) Deduplicate(ctx context.Context, actor string) (int, error) {
	if f.dedupeFn == nil {
		return 0, nil
	}
	return f.dedupeFn(ctx, actor)
}

type fakeQueue struct {
	activeFn     func(ctx context.Context, patientID string, day clock.CivilDate) (models.QueueEntry, bool, error)
	getFn        func(ctx context.Context, entryID string) (models.QueueEntry, bool, error)
	listDayFn    func(ctx context.Context, branchID string, day clock.CivilDate) ([]models.QueueEntry, error)
	callFn       func(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error)
	completeFn   func(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error)
	cancelFn     func(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error)
	rejectFn     func(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error)
	eventsFn     func(ctx context.Context, entryID string) ([]store.QueueEvent, error)
	outboxFn     func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
	dailyStatsFn func(ctx context.Context, branchID string, day clock.CivilDate) (store.DailyStats, error)
}

func (f fakeQueue) Admit(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
	return store.AdmitResult{}, nil
}

func (f fakeQueue) ActiveEntryFor(ctx context.Context, patientID string, day clock.CivilDate) (models.QueueEntry, bool, error) {
	if f.activeFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.activeFn(ctx, patientID, day)
}

func (f fakeQueue) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error) {
	if f.getFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.getFn(ctx, entryID)
}

func (f fakeQueue) ListDay(ctx context.Context, branchID string, day clock.CivilDate) ([]models.QueueEntry, error) {
	if f.listDayFn == nil {
		return nil, nil
	}
	return f.listDayFn(ctx, branchID, day)
}

func (f fakeQueue) CallEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	if f.callFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeQueue) CompleteEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	if f.completeFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeQueue) CancelEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	if f.cancelFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeQueue) RejectEntry(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	if f.rejectFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.rejectFn(ctx, input)
}

func (f fakeQueue) Deduplicate(ctx context.Context, day clock.CivilDate, actor string) (int, error) {
	return 0, nil
}

func (f fakeQueue) ListEntryEvents(ctx context.Context, entryID string) ([]store.QueueEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, entryID)
}

func (f fakeQueue) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, after, limit)
}

func (f fakeQueue) DailyStats(ctx context.Context, branchID string, day clock.CivilDate) (store.DailyStats, error) {
	if f.dailyStatsFn == nil {
		return store.DailyStats{}, nil
	}
	return f.dailyStatsFn(ctx, branchID, day)
}

type fakeDirectory struct {
	confirmFn func(ctx context.Context, appointmentID string) (models.Appointment, error)
}

func (f fakeDirectory) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	return patient, nil
}

func (f fakeDirectory) GetPatient(ctx context.Context, patientID string) (models.Patient, bool, error) {
	return models.Patient{}, false, nil
}

func (f fakeDirectory) ListPatients(ctx context.Context, limit int) ([]models.Patient, error) {
	return nil, nil
}

func (f fakeDirectory) CreateAppointment(ctx context.Context, appointment models.Appointment) (models.Appointment, error) {
	return appointment, nil
}

func (f fakeDirectory) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, bool, error) {
	return models.Appointment{}, false, nil
}

func (f fakeDirectory) ListAppointments(ctx context.Context, branchID string, day clock.CivilDate) ([]models.Appointment, error) {
	return nil, nil
}

func (f fakeDirectory) ConfirmAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	if f.confirmFn == nil {
		return models.Appointment{AppointmentID: appointmentID, Status: models.AppointmentConfirmed}, nil
	}
	return f.confirmFn(ctx, appointmentID)
}

func (f fakeDirectory) ListBranches(ctx context.Context) ([]models.Branch, error) {
	return nil, nil
}

func (f fakeDirectory) ListTreatments(ctx context.Context, patientID string) ([]models.Treatment, error) {
	return nil, nil
}

func newTestHandler(admitter fakeAdmitter, q fakeQueue, d fakeDirectory) *Handler {
	return NewHandler(admitter, q, d, clock.Clock{})
}

func TestAdmitWalkinSuccess(t *testing.T) {
	admitter := fakeAdmitter{
		admitFn: func(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
			return store.AdmitResult{
				Action: store.AdmitAdded,
				Entry: models.QueueEntry{
					EntryID:     "11111111-1111-1111-1111-111111111111",
					RequestID:   input.RequestID,
					QueueNumber: 1,
					Status:      models.StatusWaiting,
				},
			}, nil
		},
	}
	h := newTestHandler(admitter, fakeQueue{}, fakeDirectory{})

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"patient_id": "22222222-2222-2222-2222-222222222222",
		"branch_id":  "33333333-3333-3333-3333-333333333333",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var result store.AdmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Action != store.AdmitAdded || result.Entry.QueueNumber != 1 {
		t.Fatalf("unexpected admit response: %+v", result)
	}
}

func TestAdmitMissingFields(t *testing.T) {
	h := newTestHandler(fakeAdmitter{}, fakeQueue{}, fakeDirectory{})

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestAdmitInvalidUUID(t *testing.T) {
	h := newTestHandler(fakeAdmitter{}, fakeQueue{}, fakeDirectory{})

	payload := map[string]string{
		"request_id": "not-a-uuid",
		"patient_id": "22222222-2222-2222-2222-222222222222",
		"branch_id":  "33333333-3333-3333-3333-333333333333",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestAdmitConflictExhausted(t *testing.T) {
	admitter := fakeAdmitter{
		admitFn: func(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
			return store.AdmitResult{}, store.ErrConflictExhausted
		},
	}
	h := newTestHandler(admitter, fakeQueue{}, fakeDirectory{})

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"patient_id": "22222222-2222-2222-2222-222222222222",
		"branch_id":  "33333333-3333-3333-3333-333333333333",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestBoardComputesWait(t *testing.T) {
	q := fakeQueue{
		listDayFn: func(ctx context.Context, branchID string, day clock.CivilDate) ([]models.QueueEntry, error) {
			return []models.QueueEntry{
				{EntryID: "e1", QueueNumber: 1, Status: models.StatusWaiting, CreatedAt: time.Now().UTC().Add(-30 * time.Minute)},
			}, nil
		},
	}
	h := newTestHandler(fakeAdmitter{}, q, fakeDirectory{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue?branch_id=33333333-3333-3333-3333-333333333333", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var board []boardEntry
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(board) != 1 || board[0].WaitMinutes < 29 {
		t.Fatalf("unexpected board: %+v", board)
	}
}

func TestActiveEntryNoContent(t *testing.T) {
	h := newTestHandler(fakeAdmitter{}, fakeQueue{}, fakeDirectory{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue/active?patient_id=22222222-2222-2222-2222-222222222222", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestEntryActionCall(t *testing.T) {
	var captured store.TransitionInput
	q := fakeQueue{
		callFn: func(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
			captured = input
			return models.QueueEntry{EntryID: input.EntryID, Status: models.StatusServing}, true, nil
		},
	}
	h := newTestHandler(fakeAdmitter{}, q, fakeDirectory{})

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"actor":      "doctor",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/call", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if captured.EntryID != "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa" || captured.Actor != "doctor" {
		t.Fatalf("unexpected transition input: %+v", captured)
	}
}

func TestEntryActionInvalidState(t *testing.T) {
	q := fakeQueue{
		cancelFn: func(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
			return models.QueueEntry{}, false, store.ErrInvalidState
		},
	}
	h := newTestHandler(fakeAdmitter{}, q, fakeDirectory{})

	payload := map[string]string{"request_id": "11111111-1111-1111-1111-111111111111"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/cancel", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestEntryActionUnknown(t *testing.T) {
	h := newTestHandler(fakeAdmitter{}, fakeQueue{}, fakeDirectory{})

	payload := map[string]string{"request_id": "11111111-1111-1111-1111-111111111111"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/queue/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/promote", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestDeduplicateEndpoint(t *testing.T) {
	admitter := fakeAdmitter{
		dedupeFn: func(ctx context.Context, actor string) (int, error) {
			return 2, nil
		},
	}
	h := newTestHandler(admitter, fakeQueue{}, fakeDirectory{})

	body, _ := json.Marshal(map[string]string{"actor": "admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/queue/actions/deduplicate", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var result map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["removed_count"] != 2 {
		t.Fatalf("removed_count=%d, want 2", result["removed_count"])
	}
}

func TestConfirmAppointmentAdmits(t *testing.T) {
	confirmed := false
	var admitted store.AdmitInput
	d := fakeDirectory{
		confirmFn: func(ctx context.Context, appointmentID string) (models.Appointment, error) {
			confirmed = true
			return models.Appointment{AppointmentID: appointmentID, Status: models.AppointmentConfirmed}, nil
		},
	}
	admitter := fakeAdmitter{
		admitFn: func(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
			admitted = input
			return store.AdmitResult{Action: store.AdmitAdded}, nil
		},
	}
	h := newTestHandler(admitter, fakeQueue{}, d)

	body, _ := json.Marshal(map[string]string{"request_id": "11111111-1111-1111-1111-111111111111"})
	req := httptest.NewRequest(http.MethodPost, "/api/appointments/bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb/confirm", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !confirmed {
		t.Fatalf("appointment was not confirmed")
	}
	if admitted.AppointmentID != "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb" {
		t.Fatalf("admit input: %+v", admitted)
	}
}

func TestConfirmClosedAppointment(t *testing.T) {
	d := fakeDirectory{
		confirmFn: func(ctx context.Context, appointmentID string) (models.Appointment, error) {
			return models.Appointment{}, store.ErrAppointmentClosed
		},
	}
	h := newTestHandler(fakeAdmitter{}, fakeQueue{}, d)

	body, _ := json.Marshal(map[string]string{"request_id": "11111111-1111-1111-1111-111111111111"})
	req := httptest.NewRequest(http.MethodPost, "/api/appointments/bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb/confirm", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestDailyStats(t *testing.T) {
	q := fakeQueue{
		dailyStatsFn: func(ctx context.Context, branchID string, day clock.CivilDate) (store.DailyStats, error) {
			return store.DailyStats{Total: 5, Waiting: 2, Completed: 3}, nil
		},
	}
	h := newTestHandler(fakeAdmitter{}, q, fakeDirectory{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats/daily?branch_id=33333333-3333-3333-3333-333333333333", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var stats store.DailyStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(fakeAdmitter{}, fakeQueue{}, fakeDirectory{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}
