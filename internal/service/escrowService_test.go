package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawsuite/paycore/internal/entity"
)

func newEscrowFixture(autoReleaseAfter time.Duration) (*fakeEscrowRepo, *fakeTaskPublisher, EscrowService) {
	repo := newFakeEscrowRepo()
	publisher := &fakeTaskPublisher{}
	svc := NewEscrowService(repo, publisher, autoReleaseAfter)
	return repo, publisher, svc
}

func createHold(t *testing.T, svc EscrowService, bookingRef string) *entity.Escrow {
	t.Helper()

	escrow, err := svc.CreateEscrow(context.Background(), &CreateEscrowRequest{
		BookingRef:   bookingRef,
		PayerRef:     "customer-1",
		PayeeRef:     "provider-9",
		Amount:       20000,
		Currency:     "EUR",
		GatewayTxRef: "gw-" + bookingRef,
	})
	require.NoError(t, err)
	require.Equal(t, entity.EscrowStatusHeld, escrow.Status)
	return escrow
}

func TestCreateEscrowIdempotentByGatewayRef(t *testing.T) {
	_, _, svc := newEscrowFixture(72 * time.Hour)
	ctx := context.Background()

	first := createHold(t, svc, "booking-1")

	// Webhook redelivery: same booking, same gateway transaction.
	replay, err := svc.CreateEscrow(ctx, &CreateEscrowRequest{
		BookingRef:   "booking-1",
		PayerRef:     "customer-1",
		PayeeRef:     "provider-9",
		Amount:       20000,
		Currency:     "EUR",
		GatewayTxRef: "gw-booking-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	// A different capture against the same booking is a real conflict.
	_, err = svc.CreateEscrow(ctx, &CreateEscrowRequest{
		BookingRef:   "booking-1",
		PayerRef:     "customer-1",
		PayeeRef:     "provider-9",
		Amount:       20000,
		Currency:     "EUR",
		GatewayTxRef: "gw-other",
	})
	assert.ErrorIs(t, err, entity.ErrEscrowExists)
}

func TestEscrowTransitionsAreMonotonic(t *testing.T) {
	_, _, svc := newEscrowFixture(72 * time.Hour)
	ctx := context.Background()

	escrow := createHold(t, svc, "booking-2")

	require.NoError(t, svc.ReleaseEscrow(ctx, escrow.ID, "operator-1"))

	// Repeating the same transition is idempotent.
	require.NoError(t, svc.ReleaseEscrow(ctx, escrow.ID, "operator-1"))

	// A different transition on a terminal escrow is a conflict.
	err := svc.RefundEscrow(ctx, escrow.ID, "customer changed mind", "operator-1")
	assert.ErrorIs(t, err, entity.ErrEscrowNotHeld)

	stored, err := svc.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowStatusReleased, stored.Status)
}

func TestDisputeFreezesAutoRelease(t *testing.T) {
	repo, _, svc := newEscrowFixture(time.Hour)
	ctx := context.Background()

	escrow := createHold(t, svc, "booking-3")
	require.NoError(t, svc.DisputeEscrow(ctx, escrow.ID, "service not delivered", "customer-1"))

	// Push the deadline into the past and run the sweep.
	repo.mu.Lock()
	repo.escrows[escrow.ID].AutoReleaseAt = time.Now().Add(-time.Minute)
	repo.mu.Unlock()

	released, err := svc.AutoReleaseExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)

	stored, err := svc.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowStatusDisputed, stored.Status)

	// Manual resolution out of the dispute still works, once.
	require.NoError(t, svc.ReleaseEscrow(ctx, escrow.ID, "operator-1"))
	err = svc.RefundEscrow(ctx, escrow.ID, "too late", "operator-2")
	assert.ErrorIs(t, err, entity.ErrEscrowNotHeld)
}

func TestAutoReleaseExpiredHolds(t *testing.T) {
	repo, publisher, svc := newEscrowFixture(time.Hour)
	ctx := context.Background()

	due := createHold(t, svc, "booking-4")
	fresh := createHold(t, svc, "booking-5")

	repo.mu.Lock()
	repo.escrows[due.ID].AutoReleaseAt = time.Now().Add(-time.Minute)
	repo.mu.Unlock()

	released, err := svc.AutoReleaseExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	stored, err := svc.GetEscrow(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowStatusReleased, stored.Status)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, "system:auto-release", *stored.ResolvedBy)

	stored, err = svc.GetEscrow(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowStatusHeld, stored.Status)

	// Exactly one payout task, toward the payee.
	tasks := publisher.published()
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskTypePayoutRelease, tasks[0].Type)
	assert.Equal(t, due.ID, tasks[0].Data["escrow_id"])
	assert.Equal(t, "provider-9", tasks[0].Data["recipient_ref"])

	// Re-running the sweep moves nothing.
	released, err = svc.AutoReleaseExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)
	assert.Len(t, publisher.published(), 1)
}

func TestManualVersusSweepSingleWinner(t *testing.T) {
	repo, publisher, svc := newEscrowFixture(time.Hour)
	ctx := context.Background()

	escrow := createHold(t, svc, "booking-6")
	repo.mu.Lock()
	repo.escrows[escrow.ID].AutoReleaseAt = time.Now().Add(-time.Minute)
	repo.mu.Unlock()

	var wg sync.WaitGroup
	var refundErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		refundErr = svc.RefundEscrow(ctx, escrow.ID, "cancelled before service", "operator-1")
	}()
	go func() {
		defer wg.Done()
		_, _ = svc.AutoReleaseExpiredHolds(ctx)
	}()
	wg.Wait()

	stored, err := svc.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)

	// Exactly one path resolved the escrow and exactly one payout exists.
	if refundErr == nil && stored.Status == entity.EscrowStatusRefunded {
		require.Len(t, publisher.published(), 1)
		assert.Equal(t, TaskTypePayoutRefund, publisher.published()[0].Type)
	} else {
		assert.True(t, errors.Is(refundErr, entity.ErrEscrowNotHeld))
		assert.Equal(t, entity.EscrowStatusReleased, stored.Status)
		require.Len(t, publisher.published(), 1)
		assert.Equal(t, TaskTypePayoutRelease, publisher.published()[0].Type)
	}
}

func TestRefundEnqueuesPayoutToPayer(t *testing.T) {
	_, publisher, svc := newEscrowFixture(72 * time.Hour)
	ctx := context.Background()

	escrow := createHold(t, svc, "booking-7")
	require.NoError(t, svc.RefundEscrow(ctx, escrow.ID, "cancelled before service", "operator-1"))

	tasks := publisher.published()
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskTypePayoutRefund, tasks[0].Type)
	assert.Equal(t, "customer-1", tasks[0].Data["recipient_ref"])
	assert.Equal(t, escrow.Amount, tasks[0].Data["amount"])
}

func TestTransitionWithoutQueueStillCommits(t *testing.T) {
	repo := newFakeEscrowRepo()
	svc := NewEscrowService(repo, nil, 72*time.Hour)
	ctx := context.Background()

	escrow := createHold(t, svc, "booking-8")
	require.NoError(t, svc.ReleaseEscrow(ctx, escrow.ID, "operator-1"))

	stored, err := svc.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowStatusReleased, stored.Status)
}

func TestTransitionUnknownEscrow(t *testing.T) {
	_, _, svc := newEscrowFixture(72 * time.Hour)

	err := svc.ReleaseEscrow(context.Background(), "missing", "operator-1")
	assert.ErrorIs(t, err, entity.ErrEscrowNotFound)
}
