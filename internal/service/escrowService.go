package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	repository "github.com/pawsuite/paycore/internal/database/postgres"
	"github.com/pawsuite/paycore/internal/entity"
)

const autoReleaseActor = "system:auto-release"

type escrowService struct {
	escrowRepo       repository.EscrowRepository
	queue            TaskPublisher
	autoReleaseAfter time.Duration
}

func NewEscrowService(escrowRepo repository.EscrowRepository, queue TaskPublisher, autoReleaseAfter time.Duration) EscrowService {
	return &escrowService{
		escrowRepo:       escrowRepo,
		queue:            queue,
		autoReleaseAfter: autoReleaseAfter,
	}
}

// CreateEscrow opens a hold for a captured booking payment. One escrow per
// booking; a replayed create carrying the same gateway transaction ref
// returns the existing row so webhook retries do not error.
func (s *escrowService) CreateEscrow(ctx context.Context, req *CreateEscrowRequest) (*entity.Escrow, error) {
	now := time.Now()
	escrow := &entity.Escrow{
		ID:            uuid.NewString(),
		BookingRef:    req.BookingRef,
		PayerRef:      req.PayerRef,
		PayeeRef:      req.PayeeRef,
		Amount:        req.Amount,
		Currency:      req.Currency,
		GatewayTxRef:  req.GatewayTxRef,
		Status:        entity.EscrowStatusHeld,
		HoldCreatedAt: now,
		AutoReleaseAt: now.Add(s.autoReleaseAfter),
		Metadata:      req.Metadata,
	}

	err := s.escrowRepo.Create(ctx, escrow)
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"escrow_id":   escrow.ID,
			"booking_ref": escrow.BookingRef,
			"amount":      escrow.Amount,
		}).Info("Escrow hold created")
		return escrow, nil
	}

	if errors.Is(err, entity.ErrEscrowExists) {
		existing, getErr := s.escrowRepo.GetByBookingRef(ctx, req.BookingRef)
		if getErr != nil {
			return nil, getErr
		}
		if existing.GatewayTxRef == req.GatewayTxRef {
			return existing, nil
		}
		return nil, entity.ErrEscrowExists
	}
	return nil, fmt.Errorf("failed to create escrow: %w", err)
}

func (s *escrowService) GetEscrow(ctx context.Context, id string) (*entity.Escrow, error) {
	return s.escrowRepo.GetByID(ctx, id)
}

func (s *escrowService) ReleaseEscrow(ctx context.Context, id, actorRef string) error {
	return s.transition(ctx, id, entity.EscrowStatusReleased, actorRef, "released by actor")
}

func (s *escrowService) RefundEscrow(ctx context.Context, id, reason, actorRef string) error {
	return s.transition(ctx, id, entity.EscrowStatusRefunded, actorRef, reason)
}

func (s *escrowService) DisputeEscrow(ctx context.Context, id, reason, actorRef string) error {
	return s.transition(ctx, id, entity.EscrowStatusDisputed, actorRef, reason)
}

// transition runs the shared conditional statement. A zero-row result is
// idempotent success when the escrow already sits in the requested state,
// otherwise ErrEscrowNotHeld. Payout tasks are queued only after the
// transition committed; a payout failure never unwinds it.
func (s *escrowService) transition(ctx context.Context, id string, to entity.EscrowStatus, actorRef, reason string) error {
	moved, err := s.escrowRepo.Transition(ctx, id, to, actorRef, reason, time.Now())
	if err != nil {
		return err
	}
	if !moved {
		escrow, err := s.escrowRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if escrow.Status == to {
			return nil
		}
		return entity.ErrEscrowNotHeld
	}

	escrow, err := s.escrowRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"escrow_id": id,
		"status":    to,
		"actor_ref": actorRef,
	}).Info("Escrow transitioned")

	switch to {
	case entity.EscrowStatusReleased:
		s.enqueuePayout(ctx, escrow, TaskTypePayoutRelease, escrow.PayeeRef)
	case entity.EscrowStatusRefunded:
		s.enqueuePayout(ctx, escrow, TaskTypePayoutRefund, escrow.PayerRef)
	}
	return nil
}

// AutoReleaseExpiredHolds releases every held escrow past its deadline via
// the same conditional transition as the manual path, so a concurrent manual
// resolution and the sweep can never both win. Returns rows actually moved.
func (s *escrowService) AutoReleaseExpiredHolds(ctx context.Context) (int64, error) {
	released, err := s.escrowRepo.AutoRelease(ctx, time.Now(), autoReleaseActor)
	if err != nil {
		return 0, err
	}

	for _, escrow := range released {
		s.enqueuePayout(ctx, escrow, TaskTypePayoutRelease, escrow.PayeeRef)
	}

	if len(released) > 0 {
		logrus.WithField("count", len(released)).Info("Expired escrow holds auto-released")
	}
	return int64(len(released)), nil
}

func (s *escrowService) GetEscrowsByStatus(ctx context.Context, status entity.EscrowStatus) ([]*entity.Escrow, error) {
	return s.escrowRepo.GetByStatus(ctx, status)
}

func (s *escrowService) enqueuePayout(ctx context.Context, escrow *entity.Escrow, taskType, recipientRef string) {
	if s.queue == nil {
		logrus.WithField("escrow_id", escrow.ID).Warn("Payout queue unavailable, payout requires manual reconciliation")
		return
	}

	task := &Task{
		ID:   fmt.Sprintf("%s_%s", taskType, escrow.ID),
		Type: taskType,
		Data: map[string]interface{}{
			"escrow_id":     escrow.ID,
			"recipient_ref": recipientRef,
			"amount":        escrow.Amount,
			"currency":      escrow.Currency,
		},
		MaxRetries: 5,
	}

	if err := s.queue.Publish(ctx, task); err != nil {
		// The state transition is the authoritative fact that funds are
		// due; queue failure is logged for reconciliation, not propagated.
		logrus.WithFields(logrus.Fields{
			"escrow_id": escrow.ID,
			"task_type": taskType,
		}).Errorf("Failed to enqueue payout task: %v", err)
	}
}
