package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/pawsuite/paycore/internal/entity"
	"github.com/pawsuite/paycore/pkg/payout"
)

// EscrowReader loads escrow rows for payout verification. Declared here to
// keep the queue package decoupled from the service layer.
type EscrowReader interface {
	GetEscrow(ctx context.Context, id string) (*entity.Escrow, error)
}

// PayoutSender executes the external funds movement.
type PayoutSender interface {
	Send(ctx context.Context, req *payout.Request) error
}

// TaskHandler executes outbox tasks.
type TaskHandler struct {
	escrows EscrowReader
	payouts PayoutSender
}

func NewTaskHandler(escrows EscrowReader, payouts PayoutSender) *TaskHandler {
	return &TaskHandler{
		escrows: escrows,
		payouts: payouts,
	}
}

// HandleTask dispatches a task by type.
func (h *TaskHandler) HandleTask(task *Task) error {
	log.Printf("Processing task %s of type %s (attempt %d/%d)",
		task.ID, task.Type, task.Attempts, task.MaxRetries)

	switch task.Type {
	case TaskTypePayoutRelease:
		return h.handlePayout(task, entity.EscrowStatusReleased, "payout")
	case TaskTypePayoutRefund:
		return h.handlePayout(task, entity.EscrowStatusRefunded, "refund")
	case TaskTypeNotifyPartner:
		return h.handleNotifyPartner(task)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// handlePayout re-reads the escrow and only pays out when its committed
// status matches the task. A stale or duplicate task against an escrow in
// any other state is dropped as a no-op.
func (h *TaskHandler) handlePayout(task *Task, wantStatus entity.EscrowStatus, direction string) error {
	ctx := context.Background()

	escrowID := task.GetString("escrow_id")
	if escrowID == "" {
		return fmt.Errorf("invalid escrow_id in task data")
	}

	escrow, err := h.escrows.GetEscrow(ctx, escrowID)
	if err != nil {
		return fmt.Errorf("failed to load escrow %s: %v", escrowID, err)
	}

	if escrow.Status != wantStatus {
		log.Printf("Escrow %s is %s, not %s, skipping payout task %s",
			escrow.ID, escrow.Status, wantStatus, task.ID)
		return nil
	}

	req := &payout.Request{
		EscrowID:     escrow.ID,
		RecipientRef: task.GetString("recipient_ref"),
		Amount:       task.GetInt64("amount"),
		Currency:     task.GetString("currency"),
		Direction:    direction,
	}

	if err := h.payouts.Send(ctx, req); err != nil {
		return fmt.Errorf("payout for escrow %s failed: %v", escrow.ID, err)
	}

	log.Printf("Payout for escrow %s (%s %d %s) completed",
		escrow.ID, direction, req.Amount, req.Currency)
	return nil
}

func (h *TaskHandler) handleNotifyPartner(task *Task) error {
	// Partner notifications are best effort; log and succeed so they never
	// clog the DLQ.
	log.Printf("Partner notification: %v", task.Data)
	return nil
}
