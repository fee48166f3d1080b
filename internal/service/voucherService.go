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

type voucherService struct {
	voucherRepo repository.VoucherRepository
}

func NewVoucherService(voucherRepo repository.VoucherRepository) VoucherService {
	return &voucherService{voucherRepo: voucherRepo}
}

// IssueVoucher creates a pending voucher and returns the plaintext code.
// Only the hash is persisted; a lost code is unrecoverable, same as a
// physical gift card.
func (s *voucherService) IssueVoucher(ctx context.Context, req *IssueVoucherRequest) (*IssuedVoucher, error) {
	code, hash, suffix, err := generateVoucherCode()
	if err != nil {
		return nil, err
	}

	voucher := &entity.Voucher{
		ID:              uuid.NewString(),
		CodeHash:        hash,
		CodeSuffix:      suffix,
		Type:            req.Type,
		Currency:        req.Currency,
		InitialAmount:   req.Amount,
		RemainingAmount: req.Amount,
		Status:          entity.VoucherStatusPending,
		PurchaserRef:    req.PurchaserRef,
		RecipientRef:    req.RecipientRef,
		ExpiresAt:       req.ExpiresAt,
	}

	if err := s.voucherRepo.Create(ctx, voucher); err != nil {
		return nil, fmt.Errorf("failed to issue voucher: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"voucher_id":  voucher.ID,
		"code_suffix": voucher.CodeSuffix,
		"amount":      voucher.InitialAmount,
		"currency":    voucher.Currency,
	}).Info("Voucher issued")

	return &IssuedVoucher{Voucher: voucher, Code: code}, nil
}

// ClaimVoucher binds ownership by plaintext code. Claiming is one-time;
// a reclaim by the same owner is an idempotent success, a claim by anyone
// else fails closed. There is no transfer path.
func (s *voucherService) ClaimVoucher(ctx context.Context, req *ClaimVoucherRequest) (*entity.Voucher, error) {
	voucher, err := s.voucherRepo.GetByCodeHash(ctx, hashVoucherCode(req.Code))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if voucher.PastExpiry(now) {
		if _, err := s.voucherRepo.MarkExpired(ctx, voucher.ID, now); err != nil {
			return nil, err
		}
		return nil, entity.ErrVoucherExpired
	}

	bound, err := s.voucherRepo.Bind(ctx, voucher.ID, req.ClaimantRef, now)
	if err != nil {
		return nil, err
	}
	if !bound {
		current, err := s.voucherRepo.GetByID(ctx, voucher.ID)
		if err != nil {
			return nil, err
		}
		if current.OwnedBy(req.ClaimantRef) {
			return current, nil
		}
		return nil, entity.ErrVoucherClaimed
	}

	logrus.WithFields(logrus.Fields{
		"voucher_id": voucher.ID,
		"owner_ref":  req.ClaimantRef,
	}).Info("Voucher claimed")

	return s.voucherRepo.GetByID(ctx, voucher.ID)
}

// RedeemVoucher debits the voucher against a payment-terminal session. The
// session id is the idempotency key: a retried callback returns the state
// the first attempt produced, never a second debit.
func (s *voucherService) RedeemVoucher(ctx context.Context, req *RedeemVoucherRequest) (*RedeemResult, error) {
	voucher, err := s.voucherRepo.GetByID(ctx, req.VoucherID)
	if err != nil {
		return nil, err
	}

	if !voucher.OwnedBy(req.OwnerRef) {
		return nil, entity.ErrUnauthorized
	}

	switch voucher.Status {
	case entity.VoucherStatusUsed, entity.VoucherStatusCancelled, entity.VoucherStatusExpired:
		return nil, entity.ErrVoucherNotRedeemable
	}

	now := time.Now()
	if voucher.PastExpiry(now) {
		if _, err := s.voucherRepo.MarkExpired(ctx, voucher.ID, now); err != nil {
			return nil, err
		}
		return nil, entity.ErrVoucherExpired
	}

	// Replay check before any debit attempt.
	existing, err := s.voucherRepo.FindRedemption(ctx, req.VoucherID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		current, err := s.voucherRepo.GetByID(ctx, req.VoucherID)
		if err != nil {
			return nil, err
		}
		return &RedeemResult{
			VoucherID:       current.ID,
			RemainingAmount: current.RemainingAmount,
			Status:          current.Status,
			Replayed:        true,
		}, nil
	}

	record := &entity.RedemptionRecord{
		ID:             uuid.NewString(),
		VoucherID:      req.VoucherID,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         req.Amount,
		LocationRef:    req.LocationRef,
	}

	debited, err := s.voucherRepo.Debit(ctx, record)
	if err != nil {
		if errors.Is(err, entity.ErrInsufficientBalance) || errors.Is(err, entity.ErrVoucherNotRedeemable) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to redeem voucher: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"voucher_id":      debited.ID,
		"amount":          req.Amount,
		"remaining":       debited.RemainingAmount,
		"idempotency_key": req.IdempotencyKey,
	}).Info("Voucher redeemed")

	return &RedeemResult{
		VoucherID:       debited.ID,
		RemainingAmount: debited.RemainingAmount,
		Status:          debited.Status,
	}, nil
}

func (s *voucherService) CancelVoucher(ctx context.Context, id string) error {
	cancelled, err := s.voucherRepo.Cancel(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if !cancelled {
		voucher, err := s.voucherRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher.Status == entity.VoucherStatusCancelled {
			return nil
		}
		return entity.ErrVoucherNotRedeemable
	}

	logrus.WithField("voucher_id", id).Info("Voucher cancelled")
	return nil
}

func (s *voucherService) GetVoucher(ctx context.Context, id string) (*entity.Voucher, error) {
	return s.voucherRepo.GetByID(ctx, id)
}

func (s *voucherService) ListOwnerVouchers(ctx context.Context, ownerRef, cursor string, limit int) (*VoucherPage, error) {
	vouchers, hasMore, err := s.voucherRepo.ListByOwner(ctx, ownerRef, cursor, limit)
	if err != nil {
		return nil, err
	}

	page := &VoucherPage{Vouchers: vouchers, HasMore: hasMore}
	if hasMore && len(vouchers) > 0 {
		page.NextCursor = vouchers[len(vouchers)-1].ID
	}
	return page, nil
}
