package repository

import (
	"context"
	"time"

	"github.com/pawsuite/paycore/internal/entity"
)

type ReservationRepository interface {
	// Create inserts the reservation; the partial unique index on active
	// resource keys turns a concurrent duplicate into entity.ErrSlotTaken.
	Create(ctx context.Context, reservation *entity.Reservation) error
	GetByID(ctx context.Context, id string) (*entity.Reservation, error)
	GetActiveByResourceKey(ctx context.Context, resourceKey string) (*entity.Reservation, error)

	// Conditional transitions. Each returns whether a row actually moved;
	// the caller decides what a zero-row result means.
	MarkConsumed(ctx context.Context, id string, now time.Time) (bool, error)
	MarkReleased(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireBefore transitions every active reservation whose TTL elapsed
	// before the given instant and returns the number of rows moved.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

type VoucherRepository interface {
	Create(ctx context.Context, voucher *entity.Voucher) error
	GetByID(ctx context.Context, id string) (*entity.Voucher, error)
	GetByCodeHash(ctx context.Context, codeHash string) (*entity.Voucher, error)

	// Bind sets the owner on an unclaimed voucher. Zero rows means the
	// voucher was already claimed (possibly by the same owner) or is not
	// pending anymore.
	Bind(ctx context.Context, id, ownerRef string, now time.Time) (bool, error)

	// Debit decrements the remaining amount by record.Amount in a single
	// guarded statement and inserts the redemption record in the same
	// transaction. Returns the voucher after the debit. A lost race on the
	// idempotency pair is reported as the current voucher state, not an
	// error. Insufficient balance maps to entity.ErrInsufficientBalance.
	Debit(ctx context.Context, record *entity.RedemptionRecord) (*entity.Voucher, error)

	FindRedemption(ctx context.Context, voucherID, idempotencyKey string) (*entity.RedemptionRecord, error)
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	Cancel(ctx context.Context, id string, now time.Time) (bool, error)

	// ListByOwner pages the owner's vouchers in creation order using an
	// exclusive-start cursor (the id of the last voucher seen).
	ListByOwner(ctx context.Context, ownerRef, afterID string, limit int) ([]*entity.Voucher, bool, error)
}

type EscrowRepository interface {
	// Create inserts the escrow; a duplicate booking ref maps to
	// entity.ErrEscrowExists.
	Create(ctx context.Context, escrow *entity.Escrow) error
	GetByID(ctx context.Context, id string) (*entity.Escrow, error)
	GetByBookingRef(ctx context.Context, bookingRef string) (*entity.Escrow, error)
	GetByGatewayTxRef(ctx context.Context, gatewayTxRef string) (*entity.Escrow, error)

	// Transition moves the escrow held→to in one conditional statement.
	// Both the manual paths and the auto-release sweep go through here, so
	// exactly one of any pair of concurrent transitions can win.
	Transition(ctx context.Context, id string, to entity.EscrowStatus, actorRef, reason string, now time.Time) (bool, error)

	// AutoRelease transitions every held escrow past its auto-release
	// deadline and returns the rows actually moved.
	AutoRelease(ctx context.Context, now time.Time, actorRef string) ([]*entity.Escrow, error)

	GetByStatus(ctx context.Context, status entity.EscrowStatus) ([]*entity.Escrow, error)
}
