package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/hub"
	"dcms/clinic-service/internal/models"
	"dcms/clinic-service/internal/store"
)

type fakeOutboxStore struct {
	outboxFn func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeOutboxStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	return f.outboxFn(ctx, after, limit)
}

func (f fakeOutboxStore) Admit(context.Context, store.AdmitInput) (store.AdmitResult, error) {
	return store.AdmitResult{}, nil
}

func (f fakeOutboxStore) ActiveEntryFor(context.Context, string, clock.CivilDate) (models.QueueEntry, bool, error) {
	return models.QueueEntry{}, false, nil
}

func (f fakeOutboxStore) GetEntry(context.Context, string) (models.QueueEntry, bool, error) {
	return models.QueueEntry{}, false, nil
}

func (f fakeOutboxStore) ListDay(context.Context, string, clock.CivilDate) ([]models.QueueEntry, error) {
	return nil, nil
}

func (f fakeOutboxStore) CallEntry(context.Context, store.TransitionInput) (models.QueueEntry, bool, error) {
	return models.QueueEntry{}, false, nil
}

func (f fakeOutboxStore) CompleteEntry(context.Context, store.TransitionInput) (models.QueueEntry, bool, error) {
	return models.QueueEntry{}, false, nil
}

func (f fakeOutboxStore) CancelEntry(context.Context, store.TransitionInput) (models.QueueEntry, bool, error) {
	return models.QueueEntry{}, false, nil
}

func (f fakeOutboxStore) RejectEntry(context.Context, store.TransitionInput) (models.QueueEntry, bool, error) {
	return models.QueueEntry{}, false, nil
}

func (f fakeOutboxStore) Deduplicate(context.Context, clock.CivilDate, string) (int, error) {
	return 0, nil
}

func (f fakeOutboxStore) ListEntryEvents(context.Context, string) ([]store.QueueEvent, error) {
	return nil, nil
}

func (f fakeOutboxStore) DailyStats(context.Context, string, clock.CivilDate) (store.DailyStats, error) {
	return store.DailyStats{}, nil
}

func TestDispatcherBroadcastsAndAdvancesCursor(t *testing.T) {
	first := time.Date(2025, time.March, 5, 8, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	calls := 0
	st := fakeOutboxStore{
		outboxFn: func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
			calls++
			if calls == 1 {
				return []store.OutboxEvent{
					{EventID: "ev-1", BranchID: "branch-1", Type: "queue.added", Payload: json.RawMessage(`{"queue_number":1}`), CreatedAt: first},
					{EventID: "ev-2", BranchID: "branch-1", Type: "queue.serving", Payload: json.RawMessage(`{"queue_number":1}`), CreatedAt: second},
				}, nil
			}
			if !after.Equal(second) {
				t.Errorf("cursor=%v, want %v", after, second)
			}
			return nil, nil
		},
	}

	h := hub.New()
	client := &hub.Client{ID: "c1", Send: make(chan []byte, 4), Subscription: hub.Subscription{BranchID: "branch-1"}}
	h.Register(client)

	d := NewDispatcher(st, h, DispatcherConfig{})
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(client.Send) != 2 {
		t.Fatalf("client received %d messages, want 2", len(client.Send))
	}
	var env eventEnvelope
	if err := json.Unmarshal(<-client.Send, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != "queue.added" || !env.CreatedAt.Equal(first) {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

type fakeDeduper struct {
	removed int
	calls   int
}

func (f *fakeDeduper) Deduplicate(ctx context.Context, actor string) (int, error) {
	f.calls++
	return f.removed, nil
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	d := &fakeDeduper{removed: 1}
	s := NewSweeper(d, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if d.calls == 0 {
		t.Fatalf("sweeper never ran")
	}
}
