// Package expiry cancels payment_pending reservations whose payment never settled.
package expiry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nekogravitycat/cowork-booking-backend/internal/reservation"
)

const (
	defaultBatch    = 100
	defaultInterval = time.Minute
)

// Expirer is the part of the reservation service the worker drives.
type Expirer interface {
	ListStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]*reservation.Reservation, error)
	MarkPaymentFailed(ctx context.Context, id string) (*reservation.Reservation, error)
}

type Worker struct {
	svc   Expirer
	ttl   time.Duration
	batch int
}

// NewWorker expires reservations that stayed payment_pending longer than ttl.
func NewWorker(svc Expirer, ttl time.Duration) *Worker {
	return &Worker{svc: svc, ttl: ttl, batch: defaultBatch}
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval falls back to one minute.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := w.Sweep(ctx); err != nil {
			log.Printf("expiry: sweep stopped after %d: %v", n, err)
		} else if n > 0 {
			log.Printf("expiry: expired %d reservations", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires every stale reservation it can and reports how many it moved.
// A reservation settled between listing and expiring is skipped. Any other
// failure ends the sweep; the remaining reservations are picked up next time.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		stale, err := w.svc.ListStalePayments(ctx, w.ttl, w.batch)
		if err != nil {
			return expired, err
		}

		progressed := false
		for _, r := range stale {
			_, err := w.svc.MarkPaymentFailed(ctx, r.ID)
			switch {
			case err == nil:
				expired++
				progressed = true
			case errors.Is(err, reservation.ErrIllegalTransition), errors.Is(err, reservation.ErrNotFound):
				progressed = true
			default:
				return expired, err
			}
		}

		if len(stale) < w.batch || !progressed {
			return expired, nil
		}
	}
}
