package worker

import (
	"context"
	"log"
	"time"
)

type deduper interface {
	Deduplicate(ctx context.Context, actor string) (int, error)
}

// Sweeper periodically removes duplicate active entries. The database
// constraint already prevents new duplicates; this is a repair loop for
// rows that predate the constraint or were restored from backup.
type Sweeper struct {
	deduper  deduper
	interval time.Duration
}

func NewSweeper(d deduper, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{deduper: d, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.deduper.Deduplicate(ctx, "sweeper")
			if err != nil {
				log.Printf("dedupe sweep error: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("dedupe sweep removed %d duplicate entries", removed)
			}
		}
	}
}
