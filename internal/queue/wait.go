package queue

import (
	"time"

	"dcms/clinic-service/internal/models"
)

// WaitDuration reports how long an entry has waited for service. Waiting
// starts at admission, or at the linked appointment's scheduled time when
// that is later: a patient who arrives early is not "waiting" until their
// slot. Once the entry has been called the duration is frozen at the
// moment service began.
func WaitDuration(entry models.QueueEntry, now time.Time) time.Duration {
	start := entry.CreatedAt
	if entry.ScheduledAt != nil && entry.ScheduledAt.After(start) {
		start = *entry.ScheduledAt
	}

	end := now
	if entry.ServingAt != nil {
		end = *entry.ServingAt
	}

	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
