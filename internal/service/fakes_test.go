package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pawsuite/paycore/internal/entity"
)

// In-memory repositories reproducing the conditional-update semantics of the
// SQL layer: every transition checks its guard and reports whether a row
// moved, under a mutex so concurrent tests exercise real contention.

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]*entity.Reservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[string]*entity.Reservation)}
}

func (f *fakeReservationRepo) Create(ctx context.Context, reservation *entity.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.reservations {
		if existing.ResourceKey == reservation.ResourceKey && existing.Status == entity.ReservationStatusActive {
			return entity.ErrSlotTaken
		}
	}

	stored := *reservation
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.reservations[reservation.ID] = &stored
	return nil
}

func (f *fakeReservationRepo) GetByID(ctx context.Context, id string) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reservation, ok := f.reservations[id]
	if !ok {
		return nil, entity.ErrReservationNotFound
	}
	copied := *reservation
	return &copied, nil
}

func (f *fakeReservationRepo) GetActiveByResourceKey(ctx context.Context, resourceKey string) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, reservation := range f.reservations {
		if reservation.ResourceKey == resourceKey && reservation.Status == entity.ReservationStatusActive {
			copied := *reservation
			return &copied, nil
		}
	}
	return nil, entity.ErrReservationNotFound
}

func (f *fakeReservationRepo) MarkConsumed(ctx context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reservation, ok := f.reservations[id]
	if !ok || reservation.Status != entity.ReservationStatusActive || !reservation.ExpiresAt.After(now) {
		return false, nil
	}
	reservation.Status = entity.ReservationStatusConsumed
	reservation.UpdatedAt = now
	return true, nil
}

func (f *fakeReservationRepo) MarkReleased(ctx context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reservation, ok := f.reservations[id]
	if !ok || reservation.Status != entity.ReservationStatusActive {
		return false, nil
	}
	reservation.Status = entity.ReservationStatusReleased
	reservation.UpdatedAt = now
	return true, nil
}

func (f *fakeReservationRepo) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, reservation := range f.reservations {
		if reservation.Status == entity.ReservationStatusActive && reservation.ExpiresAt.Before(now) {
			reservation.Status = entity.ReservationStatusExpired
			reservation.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

type fakeVoucherRepo struct {
	mu          sync.Mutex
	vouchers    map[string]*entity.Voucher
	redemptions map[string]*entity.RedemptionRecord
}

func newFakeVoucherRepo() *fakeVoucherRepo {
	return &fakeVoucherRepo{
		vouchers:    make(map[string]*entity.Voucher),
		redemptions: make(map[string]*entity.RedemptionRecord),
	}
}

func redemptionKey(voucherID, idempotencyKey string) string {
	return voucherID + "|" + idempotencyKey
}

func (f *fakeVoucherRepo) Create(ctx context.Context, voucher *entity.Voucher) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *voucher
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.vouchers[voucher.ID] = &stored
	return nil
}

func (f *fakeVoucherRepo) GetByID(ctx context.Context, id string) (*entity.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	voucher, ok := f.vouchers[id]
	if !ok {
		return nil, entity.ErrVoucherNotFound
	}
	copied := *voucher
	return &copied, nil
}

func (f *fakeVoucherRepo) GetByCodeHash(ctx context.Context, codeHash string) (*entity.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, voucher := range f.vouchers {
		if voucher.CodeHash == codeHash {
			copied := *voucher
			return &copied, nil
		}
	}
	return nil, entity.ErrVoucherNotFound
}

func (f *fakeVoucherRepo) Bind(ctx context.Context, id, ownerRef string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	voucher, ok := f.vouchers[id]
	if !ok || voucher.Status != entity.VoucherStatusPending || voucher.OwnerRef != nil {
		return false, nil
	}
	owner := ownerRef
	voucher.OwnerRef = &owner
	voucher.Status = entity.VoucherStatusActive
	voucher.UpdatedAt = now
	return true, nil
}

func (f *fakeVoucherRepo) Debit(ctx context.Context, record *entity.RedemptionRecord) (*entity.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	voucher, ok := f.vouchers[record.VoucherID]
	if !ok {
		return nil, entity.ErrVoucherNotFound
	}

	// Idempotency pair lost a race: report current state, no second debit.
	if _, exists := f.redemptions[redemptionKey(record.VoucherID, record.IdempotencyKey)]; exists {
		copied := *voucher
		return &copied, nil
	}

	if voucher.Status != entity.VoucherStatusActive {
		return nil, entity.ErrVoucherNotRedeemable
	}
	if voucher.RemainingAmount < record.Amount {
		return nil, entity.ErrInsufficientBalance
	}

	voucher.RemainingAmount -= record.Amount
	if voucher.RemainingAmount == 0 {
		voucher.Status = entity.VoucherStatusUsed
	}
	voucher.UpdatedAt = time.Now()

	stored := *record
	stored.CreatedAt = voucher.UpdatedAt
	f.redemptions[redemptionKey(record.VoucherID, record.IdempotencyKey)] = &stored

	copied := *voucher
	return &copied, nil
}

func (f *fakeVoucherRepo) FindRedemption(ctx context.Context, voucherID, idempotencyKey string) (*entity.RedemptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.redemptions[redemptionKey(voucherID, idempotencyKey)]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (f *fakeVoucherRepo) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	voucher, ok := f.vouchers[id]
	if !ok {
		return false, nil
	}
	switch voucher.Status {
	case entity.VoucherStatusPending, entity.VoucherStatusActive:
		voucher.Status = entity.VoucherStatusExpired
		voucher.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (f *fakeVoucherRepo) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	voucher, ok := f.vouchers[id]
	if !ok {
		return false, nil
	}
	switch voucher.Status {
	case entity.VoucherStatusPending, entity.VoucherStatusActive:
		voucher.Status = entity.VoucherStatusCancelled
		voucher.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (f *fakeVoucherRepo) ListByOwner(ctx context.Context, ownerRef, afterID string, limit int) ([]*entity.Voucher, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var owned []*entity.Voucher
	for _, voucher := range f.vouchers {
		if voucher.OwnerRef != nil && *voucher.OwnerRef == ownerRef {
			copied := *voucher
			owned = append(owned, &copied)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	start := 0
	if afterID != "" {
		for i, voucher := range owned {
			if voucher.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	owned = owned[start:]

	hasMore := len(owned) > limit
	if hasMore {
		owned = owned[:limit]
	}
	return owned, hasMore, nil
}

type fakeEscrowRepo struct {
	mu      sync.Mutex
	escrows map[string]*entity.Escrow
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{escrows: make(map[string]*entity.Escrow)}
}

func (f *fakeEscrowRepo) Create(ctx context.Context, escrow *entity.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.escrows {
		if existing.BookingRef == escrow.BookingRef {
			return entity.ErrEscrowExists
		}
	}

	stored := *escrow
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.escrows[escrow.ID] = &stored
	return nil
}

func (f *fakeEscrowRepo) GetByID(ctx context.Context, id string) (*entity.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	escrow, ok := f.escrows[id]
	if !ok {
		return nil, entity.ErrEscrowNotFound
	}
	copied := *escrow
	return &copied, nil
}

func (f *fakeEscrowRepo) GetByBookingRef(ctx context.Context, bookingRef string) (*entity.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, escrow := range f.escrows {
		if escrow.BookingRef == bookingRef {
			copied := *escrow
			return &copied, nil
		}
	}
	return nil, entity.ErrEscrowNotFound
}

func (f *fakeEscrowRepo) GetByGatewayTxRef(ctx context.Context, gatewayTxRef string) (*entity.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, escrow := range f.escrows {
		if escrow.GatewayTxRef == gatewayTxRef {
			copied := *escrow
			return &copied, nil
		}
	}
	return nil, entity.ErrEscrowNotFound
}

func (f *fakeEscrowRepo) Transition(ctx context.Context, id string, to entity.EscrowStatus, actorRef, reason string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	escrow, ok := f.escrows[id]
	if !ok {
		return false, nil
	}
	if escrow.Status != entity.EscrowStatusHeld && escrow.Status != entity.EscrowStatusDisputed {
		return false, nil
	}

	actor := actorRef
	escrow.Status = to
	escrow.ResolvedAt = &now
	escrow.ResolvedBy = &actor
	escrow.ResolutionReason = reason
	escrow.UpdatedAt = now
	return true, nil
}

func (f *fakeEscrowRepo) AutoRelease(ctx context.Context, now time.Time, actorRef string) ([]*entity.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var released []*entity.Escrow
	for _, escrow := range f.escrows {
		if escrow.Status == entity.EscrowStatusHeld && escrow.AutoReleaseAt.Before(now) {
			actor := actorRef
			escrow.Status = entity.EscrowStatusReleased
			escrow.ResolvedAt = &now
			escrow.ResolvedBy = &actor
			escrow.ResolutionReason = "auto-release after grace period"
			escrow.UpdatedAt = now

			copied := *escrow
			released = append(released, &copied)
		}
	}
	return released, nil
}

func (f *fakeEscrowRepo) GetByStatus(ctx context.Context, status entity.EscrowStatus) ([]*entity.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var escrows []*entity.Escrow
	for _, escrow := range f.escrows {
		if escrow.Status == status {
			copied := *escrow
			escrows = append(escrows, &copied)
		}
	}
	return escrows, nil
}

// fakeTaskPublisher records published tasks.
type fakeTaskPublisher struct {
	mu    sync.Mutex
	tasks []*Task
}

func (f *fakeTaskPublisher) Publish(ctx context.Context, task *Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeTaskPublisher) published() []*Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Task, len(f.tasks))
	copy(out, f.tasks)
	return out
}
