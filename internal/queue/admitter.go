// Package queue holds the admission service that sits between the HTTP
// layer and the store. It owns retry policy: serialization conflicts and
// transient database failures are retried with jittered backoff, while
// domain outcomes pass through untouched.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"dcms/clinic-service/internal/clock"
	"dcms/clinic-service/internal/store"
)

const defaultMaxTries = 3

type Admitter struct {
	store    store.QueueStore
	clock    clock.Clock
	maxTries uint
}

func NewAdmitter(st store.QueueStore, clk clock.Clock) *Admitter {
	return &Admitter{store: st, clock: clk, maxTries: defaultMaxTries}
}

// Admit runs one admission attempt against the current civil day. A missing
// RequestID gets a generated one, which disables cross-call idempotency but
// keeps the store contract satisfied.
func (a *Admitter) Admit(ctx context.Context, input store.AdmitInput) (store.AdmitResult, error) {
	if input.RequestID == "" {
		input.RequestID = uuid.NewString()
	}
	if input.Day.IsZero() {
		input.Day = a.clock.Today()
	}

	operation := func() (store.AdmitResult, error) {
		result, err := a.store.Admit(ctx, input)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return store.AdmitResult{}, backoff.Permanent(err)
		}
		return store.AdmitResult{}, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(admitBackOff()),
		backoff.WithMaxTries(a.maxTries),
	)
	if err != nil {
		return store.AdmitResult{}, exhausted(err)
	}
	return result, nil
}

// Deduplicate sweeps the current day's active entries and removes extra
// slots, keeping each patient's earliest entry.
func (a *Admitter) Deduplicate(ctx context.Context, actor string) (int, error) {
	return a.store.Deduplicate(ctx, a.clock.Today(), actor)
}

func admitBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 300 * time.Millisecond
	return b
}

// retryable separates transient failures from domain outcomes. Duplicate
// conflicts are retried because the store re-checks the winning row on the
// next attempt; everything else an operator reported is final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, store.ErrPatientNotFound),
		errors.Is(err, store.ErrAppointmentNotFound),
		errors.Is(err, store.ErrAppointmentClosed),
		errors.Is(err, store.ErrBranchNotFound),
		errors.Is(err, store.ErrBranchClosed),
		errors.Is(err, store.ErrEntryNotFound),
		errors.Is(err, store.ErrInvalidState):
		return false
	}
	return true
}

func exhausted(err error) error {
	if !retryable(err) {
		return err
	}
	if errors.Is(err, store.ErrDuplicateEntry) {
		return store.ErrConflictExhausted
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return store.ErrBackendUnavailable
}
