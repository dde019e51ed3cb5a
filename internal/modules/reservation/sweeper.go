package reservation

import (
	"context"
	"time"
)

// Sweeper periodically releases expired PENDING holds and completes APPROVED
// reservations whose rental period has elapsed.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	now := w.svc.now().UTC()
	if n, err := w.svc.reservations.ExpireStaleHolds(ctx, now); err != nil {
		w.svc.log.Error("expire stale holds", "err", err)
	} else if n > 0 {
		w.svc.log.Info("expired stale pending holds", "count", n)
	}
	if n, err := w.svc.reservations.CompleteElapsed(ctx, now); err != nil {
		w.svc.log.Error("complete elapsed reservations", "err", err)
	} else if n > 0 {
		w.svc.log.Info("completed elapsed reservations", "count", n)
	}
}
