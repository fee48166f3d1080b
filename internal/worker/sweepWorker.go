package worker

import (
	"context"
	"time"

	"github.com/pawsuite/paycore/internal/service"

	"github.com/sirupsen/logrus"
)

// SweepWorker runs the expiry sweep for reservation holds. Each pass is a
// single conditional UPDATE, so concurrent workers are safe.
type SweepWorker struct {
	reservationService service.ReservationService
	interval           time.Duration
}

func NewSweepWorker(reservationService service.ReservationService, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		reservationService: reservationService,
		interval:           interval,
	}
}

func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Info("Reservation sweep worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Reservation sweep worker stopped")
			return
		case <-ticker.C:
			w.sweepExpiredReservations(ctx)
		}
	}
}

func (w *SweepWorker) sweepExpiredReservations(ctx context.Context) {
	expired, err := w.reservationService.SweepExpired(ctx)
	if err != nil {
		logrus.Errorf("Failed to sweep expired reservations: %v", err)
		return
	}

	if expired > 0 {
		logrus.Infof("Expired %d stale reservation holds", expired)
	}
}

func (w *SweepWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "reservation_sweep",
		"interval":    w.interval.String(),
		"status":      "running",
	}
}
