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

type reservationService struct {
	reservationRepo repository.ReservationRepository
	defaultTTL      time.Duration
}

func NewReservationService(reservationRepo repository.ReservationRepository, defaultTTL time.Duration) ReservationService {
	return &reservationService{
		reservationRepo: reservationRepo,
		defaultTTL:      defaultTTL,
	}
}

// CreateReservation attempts to hold the resource key. A conflict with an
// existing active hold is a normal outcome surfaced as ErrSlotTaken, not
// something to retry.
func (s *reservationService) CreateReservation(ctx context.Context, req *CreateReservationRequest) (*entity.Reservation, error) {
	ttl := s.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	reservation := &entity.Reservation{
		ID:          uuid.NewString(),
		ResourceKey: req.ResourceKey,
		HolderRef:   req.HolderRef,
		Status:      entity.ReservationStatusActive,
		Payload:     req.Payload,
		ExpiresAt:   time.Now().Add(ttl),
	}

	if err := s.reservationRepo.Create(ctx, reservation); err != nil {
		if errors.Is(err, entity.ErrSlotTaken) {
			return nil, entity.ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": reservation.ID,
		"resource_key":   reservation.ResourceKey,
		"expires_at":     reservation.ExpiresAt,
	}).Info("Reservation created")

	return reservation, nil
}

func (s *reservationService) GetReservation(ctx context.Context, id string) (*entity.Reservation, error) {
	return s.reservationRepo.GetByID(ctx, id)
}

// ConsumeReservation marks the hold consumed once payment succeeded. The
// transition is conditional on the row still being active and unexpired; a
// replayed consume of an already-consumed reservation reports success so
// webhook retries stay harmless.
func (s *reservationService) ConsumeReservation(ctx context.Context, id string) error {
	moved, err := s.reservationRepo.MarkConsumed(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if moved {
		logrus.WithField("reservation_id", id).Info("Reservation consumed")
		return nil
	}

	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status == entity.ReservationStatusConsumed {
		return nil
	}
	return entity.ErrReservationNotActive
}

// ReleaseReservation frees the slot after a failed or cancelled payment.
// Releasing an already released or expired hold is a no-op success.
func (s *reservationService) ReleaseReservation(ctx context.Context, id string) error {
	moved, err := s.reservationRepo.MarkReleased(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if moved {
		logrus.WithField("reservation_id", id).Info("Reservation released")
		return nil
	}

	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch reservation.Status {
	case entity.ReservationStatusReleased, entity.ReservationStatusExpired:
		return nil
	default:
		return entity.ErrReservationNotActive
	}
}

func (s *reservationService) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.reservationRepo.ExpireBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logrus.WithField("count", count).Info("Expired reservations swept")
	}
	return count, nil
}
