package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawsuite/paycore/internal/entity"
	"github.com/pawsuite/paycore/pkg/payout"
)

type stubEscrowReader struct {
	escrows map[string]*entity.Escrow
}

func (s *stubEscrowReader) GetEscrow(ctx context.Context, id string) (*entity.Escrow, error) {
	escrow, ok := s.escrows[id]
	if !ok {
		return nil, entity.ErrEscrowNotFound
	}
	return escrow, nil
}

type stubPayoutSender struct {
	sent []*payout.Request
	err  error
}

func (s *stubPayoutSender) Send(ctx context.Context, req *payout.Request) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, req)
	return nil
}

func payoutTask(taskType TaskType, escrowID string) *Task {
	return &Task{
		ID:   string(taskType) + "_" + escrowID,
		Type: taskType,
		Data: map[string]interface{}{
			"escrow_id":     escrowID,
			"recipient_ref": "provider-9",
			"amount":        int64(20000),
			"currency":      "EUR",
		},
		MaxRetries: 5,
	}
}

func TestHandlePayoutRelease(t *testing.T) {
	reader := &stubEscrowReader{escrows: map[string]*entity.Escrow{
		"esc-1": {ID: "esc-1", Status: entity.EscrowStatusReleased, Amount: 20000, Currency: "EUR"},
	}}
	sender := &stubPayoutSender{}
	handler := NewTaskHandler(reader, sender)

	err := handler.HandleTask(payoutTask(TaskTypePayoutRelease, "esc-1"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "esc-1", sender.sent[0].EscrowID)
	assert.Equal(t, "payout", sender.sent[0].Direction)
	assert.Equal(t, int64(20000), sender.sent[0].Amount)
}

func TestHandlePayoutSkipsStatusMismatch(t *testing.T) {
	// The task says released, but the row was never transitioned. The
	// committed row wins; no money moves.
	reader := &stubEscrowReader{escrows: map[string]*entity.Escrow{
		"esc-2": {ID: "esc-2", Status: entity.EscrowStatusHeld},
	}}
	sender := &stubPayoutSender{}
	handler := NewTaskHandler(reader, sender)

	err := handler.HandleTask(payoutTask(TaskTypePayoutRelease, "esc-2"))
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestHandlePayoutRefundDirection(t *testing.T) {
	reader := &stubEscrowReader{escrows: map[string]*entity.Escrow{
		"esc-3": {ID: "esc-3", Status: entity.EscrowStatusRefunded, Amount: 5000, Currency: "EUR"},
	}}
	sender := &stubPayoutSender{}
	handler := NewTaskHandler(reader, sender)

	err := handler.HandleTask(payoutTask(TaskTypePayoutRefund, "esc-3"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "refund", sender.sent[0].Direction)
}

func TestHandlePayoutMissingEscrow(t *testing.T) {
	handler := NewTaskHandler(&stubEscrowReader{escrows: map[string]*entity.Escrow{}}, &stubPayoutSender{})

	err := handler.HandleTask(payoutTask(TaskTypePayoutRelease, "missing"))
	assert.Error(t, err)
}

func TestHandleUnknownTaskType(t *testing.T) {
	handler := NewTaskHandler(&stubEscrowReader{}, &stubPayoutSender{})

	err := handler.HandleTask(&Task{ID: "x", Type: "mystery"})
	assert.Error(t, err)
}
