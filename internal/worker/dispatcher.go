// Package worker holds the background loops: the outbox dispatcher that
// feeds the realtime hub, and the optional dedupe sweeper.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"dcms/clinic-service/internal/hub"
	"dcms/clinic-service/internal/store"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Dispatcher polls the outbox and broadcasts committed events to the hub.
// The cursor is in-memory: a restart replays recent events, which is safe
// because clients treat broadcasts as refresh hints only.
type Dispatcher struct {
	store     store.QueueStore
	hub       *hub.Hub
	interval  time.Duration
	batchSize int
	cursor    time.Time
}

type DispatcherConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewDispatcher(st store.QueueStore, h *hub.Hub, cfg DispatcherConfig) *Dispatcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{
		store:     st,
		hub:       h,
		interval:  interval,
		batchSize: batch,
		cursor:    time.Now().UTC(),
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				log.Printf("outbox dispatch error: %v", err)
			}
		}
	}
}

func (d *Dispatcher) RunOnce(ctx context.Context) error {
	events, err := d.store.ListOutboxEvents(ctx, d.cursor, d.batchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		env := eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
		payload, _ := json.Marshal(env)
		d.hub.Broadcast(payload, hub.Subscription{BranchID: event.BranchID})
		d.cursor = event.CreatedAt
	}
	return nil
}
