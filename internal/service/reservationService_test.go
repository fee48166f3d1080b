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

func TestCreateReservationConflict(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	first, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "groomer-7:2026-09-01T10:00",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusActive, first.Status)

	_, err = svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "groomer-7:2026-09-01T10:00",
		HolderRef:   "customer-2",
	})
	assert.ErrorIs(t, err, entity.ErrSlotTaken)
}

func TestCreateReservationFreesSlotAfterRelease(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	first, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "sitter-3:2026-09-02",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ReleaseReservation(ctx, first.ID))

	second, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "sitter-3:2026-09-02",
		HolderRef:   "customer-2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.CreateReservation(ctx, &CreateReservationRequest{
				ResourceKey: "trainer-1:2026-09-03T15:00",
				HolderRef:   "customer-1",
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, entity.ErrSlotTaken):
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, lost)
}

func TestConsumeReservationIdempotent(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	reservation, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "groomer-1:slot",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ConsumeReservation(ctx, reservation.ID))
	// Webhook redelivery replays the consume.
	require.NoError(t, svc.ConsumeReservation(ctx, reservation.ID))

	stored, err := svc.GetReservation(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusConsumed, stored.Status)
}

func TestConsumeExpiredReservation(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	reservation, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "groomer-2:slot",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)

	repo.mu.Lock()
	repo.reservations[reservation.ID].ExpiresAt = time.Now().Add(-time.Minute)
	repo.mu.Unlock()

	err = svc.ConsumeReservation(ctx, reservation.ID)
	assert.ErrorIs(t, err, entity.ErrReservationNotActive)
}

func TestReleaseAfterConsumeFails(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	reservation, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "groomer-3:slot",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ConsumeReservation(ctx, reservation.ID))

	err = svc.ReleaseReservation(ctx, reservation.ID)
	assert.ErrorIs(t, err, entity.ErrReservationNotActive)
}

func TestReleaseReservationIdempotent(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	reservation, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "groomer-4:slot",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ReleaseReservation(ctx, reservation.ID))
	require.NoError(t, svc.ReleaseReservation(ctx, reservation.ID))
}

func TestSweepExpiredReservations(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	expired, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "sitter-1:slot",
		HolderRef:   "customer-1",
	})
	require.NoError(t, err)

	live, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "sitter-2:slot",
		HolderRef:   "customer-2",
	})
	require.NoError(t, err)

	repo.mu.Lock()
	repo.reservations[expired.ID].ExpiresAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()

	count, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := svc.GetReservation(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusExpired, stored.Status)

	stored, err = svc.GetReservation(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusActive, stored.Status)

	// Second sweep finds nothing left to expire.
	count, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestCreateReservationUsesRequestTTL(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := NewReservationService(repo, 10*time.Minute)
	ctx := context.Background()

	before := time.Now()
	reservation, err := svc.CreateReservation(ctx, &CreateReservationRequest{
		ResourceKey: "walker-1:slot",
		HolderRef:   "customer-1",
		TTLMinutes:  30,
	})
	require.NoError(t, err)

	assert.True(t, reservation.ExpiresAt.After(before.Add(29*time.Minute)))
	assert.True(t, reservation.ExpiresAt.Before(before.Add(31*time.Minute)))
}
