package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pawsuite/paycore/internal/entity"
)

type webhookService struct {
	reservationService ReservationService
	escrowService      EscrowService
}

func NewWebhookService(reservationService ReservationService, escrowService EscrowService) WebhookService {
	return &webhookService{
		reservationService: reservationService,
		escrowService:      escrowService,
	}
}

// ProcessPaymentEvent is the single point where a gateway event converts a
// reservation into a durable booking. Delivery is at-least-once: consume is
// idempotent and escrow creation replays by gateway tx ref, so redelivery
// of the same event produces the same observable outcome.
func (s *webhookService) ProcessPaymentEvent(ctx context.Context, event *entity.PaymentEvent) error {
	log := logrus.WithFields(logrus.Fields{
		"event":           event.Event,
		"hold_ref":        event.HoldRef,
		"external_tx_ref": event.ExternalTxRef,
	})

	switch event.Event {
	case entity.PaymentEventSucceeded:
		return s.handleSucceeded(ctx, event, log)
	case entity.PaymentEventFailed, entity.PaymentEventCancelled:
		if err := s.reservationService.ReleaseReservation(ctx, event.HoldRef); err != nil {
			return fmt.Errorf("failed to release reservation %s: %w", event.HoldRef, err)
		}
		log.Info("Reservation released after gateway event")
		return nil
	default:
		return entity.ErrInvalidInput
	}
}

func (s *webhookService) handleSucceeded(ctx context.Context, event *entity.PaymentEvent, log *logrus.Entry) error {
	reservation, err := s.reservationService.GetReservation(ctx, event.HoldRef)
	if err != nil {
		return err
	}

	if err := s.reservationService.ConsumeReservation(ctx, event.HoldRef); err != nil {
		return fmt.Errorf("failed to consume reservation %s: %w", event.HoldRef, err)
	}
	log.Info("Reservation consumed after successful payment")

	var params entity.BookingParams
	if len(reservation.Payload) == 0 {
		log.Warn("Reservation has no booking payload, skipping escrow creation")
		return nil
	}
	if err := json.Unmarshal(reservation.Payload, &params); err != nil || params.BookingRef == "" {
		log.Warn("Reservation payload has no booking parameters, skipping escrow creation")
		return nil
	}

	_, err = s.escrowService.CreateEscrow(ctx, &CreateEscrowRequest{
		BookingRef:   params.BookingRef,
		PayerRef:     params.PayerRef,
		PayeeRef:     params.PayeeRef,
		Amount:       event.Amount,
		Currency:     params.Currency,
		GatewayTxRef: event.ExternalTxRef,
	})
	if err != nil {
		if errors.Is(err, entity.ErrEscrowExists) {
			// A different gateway transaction already holds this booking;
			// surfaced for operator attention, the consume stands.
			return entity.ErrEscrowExists
		}
		return fmt.Errorf("failed to create escrow for booking %s: %w", params.BookingRef, err)
	}

	log.WithField("booking_ref", params.BookingRef).Info("Escrow hold opened for captured payment")
	return nil
}
