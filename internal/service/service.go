package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pawsuite/paycore/internal/entity"
)

type ReservationService interface {
	CreateReservation(ctx context.Context, req *CreateReservationRequest) (*entity.Reservation, error)
	GetReservation(ctx context.Context, id string) (*entity.Reservation, error)
	ConsumeReservation(ctx context.Context, id string) error
	ReleaseReservation(ctx context.Context, id string) error
	SweepExpired(ctx context.Context) (int64, error)
}

type VoucherService interface {
	IssueVoucher(ctx context.Context, req *IssueVoucherRequest) (*IssuedVoucher, error)
	ClaimVoucher(ctx context.Context, req *ClaimVoucherRequest) (*entity.Voucher, error)
	RedeemVoucher(ctx context.Context, req *RedeemVoucherRequest) (*RedeemResult, error)
	CancelVoucher(ctx context.Context, id string) error
	GetVoucher(ctx context.Context, id string) (*entity.Voucher, error)
	ListOwnerVouchers(ctx context.Context, ownerRef, cursor string, limit int) (*VoucherPage, error)
}

type EscrowService interface {
	CreateEscrow(ctx context.Context, req *CreateEscrowRequest) (*entity.Escrow, error)
	GetEscrow(ctx context.Context, id string) (*entity.Escrow, error)
	ReleaseEscrow(ctx context.Context, id, actorRef string) error
	RefundEscrow(ctx context.Context, id, reason, actorRef string) error
	DisputeEscrow(ctx context.Context, id, reason, actorRef string) error
	AutoReleaseExpiredHolds(ctx context.Context) (int64, error)
	GetEscrowsByStatus(ctx context.Context, status entity.EscrowStatus) ([]*entity.Escrow, error)
}

type WebhookService interface {
	ProcessPaymentEvent(ctx context.Context, event *entity.PaymentEvent) error
}

// CreateReservationRequest carries the parameters for a new hold. TTLMinutes
// of zero falls back to the configured default.
type CreateReservationRequest struct {
	ResourceKey string          `json:"resource_key" binding:"required,min=1,max=255"`
	HolderRef   string          `json:"holder_ref" binding:"required,min=1,max=255"`
	TTLMinutes  int             `json:"ttl_minutes" binding:"min=0,max=1440"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type IssueVoucherRequest struct {
	Type         string     `json:"type" binding:"required,oneof=gift promo"`
	Currency     string     `json:"currency" binding:"required,len=3"`
	Amount       int64      `json:"amount" binding:"required,min=1"`
	PurchaserRef *string    `json:"purchaser_ref,omitempty"`
	RecipientRef *string    `json:"recipient_ref,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IssuedVoucher pairs the persisted voucher with the plaintext code. The
// code is returned exactly once and never stored.
type IssuedVoucher struct {
	Voucher *entity.Voucher `json:"voucher"`
	Code    string          `json:"code"`
}

type ClaimVoucherRequest struct {
	Code        string `json:"code" binding:"required,min=8,max=64"`
	ClaimantRef string `json:"claimant_ref" binding:"required,min=1,max=255"`
}

type RedeemVoucherRequest struct {
	VoucherID      string `json:"voucher_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,min=1"`
	OwnerRef       string `json:"owner_ref" binding:"required,min=1,max=255"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=1,max=255"`
	LocationRef    string `json:"location_ref,omitempty" binding:"max=255"`
}

type RedeemResult struct {
	VoucherID       string               `json:"voucher_id"`
	RemainingAmount int64                `json:"remaining_amount"`
	Status          entity.VoucherStatus `json:"status"`
	Replayed        bool                 `json:"replayed"`
}

type VoucherPage struct {
	Vouchers   []*entity.Voucher `json:"vouchers"`
	NextCursor string            `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

type CreateEscrowRequest struct {
	BookingRef   string          `json:"booking_ref" binding:"required,min=1,max=255"`
	PayerRef     string          `json:"payer_ref" binding:"required,min=1,max=255"`
	PayeeRef     string          `json:"payee_ref" binding:"required,min=1,max=255"`
	Amount       int64           `json:"amount" binding:"required,min=1"`
	Currency     string          `json:"currency" binding:"required,len=3"`
	GatewayTxRef string          `json:"gateway_tx_ref" binding:"required,min=1,max=255"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// TaskPublisher publishes side-effect tasks (payouts, partner notification)
// to the outbox queue. Financial state never lives in the queue; tasks only
// reference committed rows.
type TaskPublisher interface {
	Publish(ctx context.Context, task *Task) error
}

// Task mirrors the queue task shape without importing the queue package.
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	MaxRetries int                    `json:"max_retries"`
}

const (
	TaskTypePayoutRelease = "payout_release"
	TaskTypePayoutRefund  = "payout_refund"
)
