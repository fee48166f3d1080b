package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pawsuite/paycore/internal/entity"
)

type voucherRepository struct {
	db *sql.DB
}

func NewVoucherRepository(db *sql.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

const voucherColumns = `
	id, code_hash, code_suffix, voucher_type, currency,
	initial_amount, remaining_amount, status, owner_ref,
	purchaser_ref, recipient_ref, expires_at, created_at, updated_at`

func (r *voucherRepository) Create(ctx context.Context, voucher *entity.Voucher) error {
	query := `
		INSERT INTO vouchers (
			id, code_hash, code_suffix, voucher_type, currency,
			initial_amount, remaining_amount, status, owner_ref,
			purchaser_ref, recipient_ref, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		voucher.ID,
		voucher.CodeHash,
		voucher.CodeSuffix,
		voucher.Type,
		voucher.Currency,
		voucher.InitialAmount,
		voucher.RemainingAmount,
		voucher.Status,
		voucher.OwnerRef,
		voucher.PurchaserRef,
		voucher.RecipientRef,
		voucher.ExpiresAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create voucher: %w", err)
	}

	voucher.CreatedAt = now
	voucher.UpdatedAt = now
	return nil
}

func (r *voucherRepository) GetByID(ctx context.Context, id string) (*entity.Voucher, error) {
	query := `SELECT` + voucherColumns + ` FROM vouchers WHERE id = $1`
	return scanVoucher(r.db.QueryRowContext(ctx, query, id))
}

func (r *voucherRepository) GetByCodeHash(ctx context.Context, codeHash string) (*entity.Voucher, error) {
	query := `SELECT` + voucherColumns + ` FROM vouchers WHERE code_hash = $1`
	return scanVoucher(r.db.QueryRowContext(ctx, query, codeHash))
}

// Bind claims the voucher for ownerRef. The owner_ref IS NULL guard makes
// the claim one-time; a zero-row result means somebody got there first and
// the caller must re-read to tell same-owner replay from a foreign claim.
func (r *voucherRepository) Bind(ctx context.Context, id, ownerRef string, now time.Time) (bool, error) {
	query := `
		UPDATE vouchers
		SET owner_ref = $2, status = 'active', updated_at = $3
		WHERE id = $1 AND owner_ref IS NULL AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, ownerRef, now)
	if err != nil {
		return false, fmt.Errorf("failed to bind voucher: %w", err)
	}
	return oneRowAffected(result)
}

// Debit performs the atomic partial redemption: one guarded UPDATE that
// decrements the balance and flips the status to used when it reaches zero,
// plus the redemption record insert, in a single transaction. Concurrent
// debits cannot both observe sufficient balance; the loser's UPDATE affects
// zero rows.
func (r *voucherRepository) Debit(ctx context.Context, record *entity.RedemptionRecord) (*entity.Voucher, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	debit := `
		UPDATE vouchers
		SET remaining_amount = remaining_amount - $2,
		    status = CASE WHEN remaining_amount - $2 = 0 THEN 'used' ELSE status END,
		    updated_at = $3
		WHERE id = $1 AND status = 'active' AND remaining_amount >= $2
		RETURNING` + voucherColumns

	voucher, err := scanVoucher(tx.QueryRowContext(ctx, debit, record.VoucherID, record.Amount, now))
	if err == entity.ErrVoucherNotFound {
		// Zero rows: either the balance is short or the status moved under
		// us. Distinguish for the caller.
		current, readErr := r.GetByID(ctx, record.VoucherID)
		if readErr != nil {
			return nil, readErr
		}
		if current.Status != entity.VoucherStatusActive {
			return nil, entity.ErrVoucherNotRedeemable
		}
		return nil, entity.ErrInsufficientBalance
	}
	if err != nil {
		return nil, err
	}

	insert := `
		INSERT INTO redemption_records (
			id, voucher_id, idempotency_key, amount, location_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, insert,
		record.ID,
		record.VoucherID,
		record.IdempotencyKey,
		record.Amount,
		record.LocationRef,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A retry with the same terminal session id landed first; its
			// debit is already committed. Report the current state as
			// success rather than double-spending.
			return r.GetByID(ctx, record.VoucherID)
		}
		return nil, fmt.Errorf("failed to insert redemption record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	record.CreatedAt = now
	return voucher, nil
}

func (r *voucherRepository) FindRedemption(ctx context.Context, voucherID, idempotencyKey string) (*entity.RedemptionRecord, error) {
	query := `
		SELECT id, voucher_id, idempotency_key, amount, location_ref, created_at
		FROM redemption_records
		WHERE voucher_id = $1 AND idempotency_key = $2
	`

	var record entity.RedemptionRecord
	err := r.db.QueryRowContext(ctx, query, voucherID, idempotencyKey).Scan(
		&record.ID,
		&record.VoucherID,
		&record.IdempotencyKey,
		&record.Amount,
		&record.LocationRef,
		&record.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find redemption record: %w", err)
	}
	return &record, nil
}

func (r *voucherRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE vouchers
		SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'active')
	`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to expire voucher: %w", err)
	}
	return oneRowAffected(result)
}

func (r *voucherRepository) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE vouchers
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'active')
	`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel voucher: %w", err)
	}
	return oneRowAffected(result)
}

// ListByOwner pages in (created_at, id) order. afterID is an exclusive-start
// cursor; the extra row fetched beyond the limit drives the hasMore flag.
func (r *voucherRepository) ListByOwner(ctx context.Context, ownerRef, afterID string, limit int) ([]*entity.Voucher, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + voucherColumns + `
		FROM vouchers
		WHERE owner_ref = $1
	`
	args := []interface{}{ownerRef}

	if afterID != "" {
		query += `
		AND (created_at, id) > (
			SELECT created_at, id FROM vouchers WHERE id = $2
		)`
		args = append(args, afterID)
	}

	query += fmt.Sprintf(`
		ORDER BY created_at, id
		LIMIT %d`, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*entity.Voucher
	for rows.Next() {
		voucher, err := scanVoucherRows(rows)
		if err != nil {
			return nil, false, err
		}
		vouchers = append(vouchers, voucher)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating vouchers: %w", err)
	}

	hasMore := len(vouchers) > limit
	if hasMore {
		vouchers = vouchers[:limit]
	}
	return vouchers, hasMore, nil
}

func scanVoucher(row *sql.Row) (*entity.Voucher, error) {
	var voucher entity.Voucher
	err := row.Scan(
		&voucher.ID,
		&voucher.CodeHash,
		&voucher.CodeSuffix,
		&voucher.Type,
		&voucher.Currency,
		&voucher.InitialAmount,
		&voucher.RemainingAmount,
		&voucher.Status,
		&voucher.OwnerRef,
		&voucher.PurchaserRef,
		&voucher.RecipientRef,
		&voucher.ExpiresAt,
		&voucher.CreatedAt,
		&voucher.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrVoucherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return &voucher, nil
}

func scanVoucherRows(rows *sql.Rows) (*entity.Voucher, error) {
	var voucher entity.Voucher
	err := rows.Scan(
		&voucher.ID,
		&voucher.CodeHash,
		&voucher.CodeSuffix,
		&voucher.Type,
		&voucher.Currency,
		&voucher.InitialAmount,
		&voucher.RemainingAmount,
		&voucher.Status,
		&voucher.OwnerRef,
		&voucher.PurchaserRef,
		&voucher.RecipientRef,
		&voucher.ExpiresAt,
		&voucher.CreatedAt,
		&voucher.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan voucher: %w", err)
	}
	return &voucher, nil
}
