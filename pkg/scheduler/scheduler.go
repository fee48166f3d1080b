package scheduler

import (
	"context"
	"time"

	"github.com/pawsuite/paycore/internal/service"

	"github.com/sirupsen/logrus"
)

// Scheduler drives the escrow auto-release pass. The sweep itself is a
// single conditional UPDATE, so an overlapping run on another instance
// releases each hold at most once.
type Scheduler struct {
	escrowService service.EscrowService
	interval      time.Duration
}

func NewScheduler(escrowService service.EscrowService, interval time.Duration) *Scheduler {
	return &Scheduler{
		escrowService: escrowService,
		interval:      interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.Info("Escrow auto-release scheduler started")

	for {
		select {
		case <-ticker.C:
			released, err := s.escrowService.AutoReleaseExpiredHolds(ctx)
			if err != nil {
				logrus.Errorf("Error auto-releasing escrow holds: %v", err)
				continue
			}
			if released > 0 {
				logrus.Infof("Auto-released %d escrow holds", released)
			}
		case <-ctx.Done():
			logrus.Info("Escrow auto-release scheduler stopped")
			return
		}
	}
}
