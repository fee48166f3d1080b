package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pawsuite/paycore/internal/entity"
)

type escrowRepository struct {
	db *sql.DB
}

func NewEscrowRepository(db *sql.DB) EscrowRepository {
	return &escrowRepository{db: db}
}

const escrowColumns = `
	id, booking_ref, payer_ref, payee_ref, amount, currency,
	gateway_tx_ref, status, hold_created_at, auto_release_at,
	resolved_at, resolved_by, resolution_reason, metadata,
	created_at, updated_at`

func (r *escrowRepository) Create(ctx context.Context, escrow *entity.Escrow) error {
	query := `
		INSERT INTO escrow_transactions (
			id, booking_ref, payer_ref, payee_ref, amount, currency,
			gateway_tx_ref, status, hold_created_at, auto_release_at,
			resolution_reason, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		escrow.ID,
		escrow.BookingRef,
		escrow.PayerRef,
		escrow.PayeeRef,
		escrow.Amount,
		escrow.Currency,
		escrow.GatewayTxRef,
		escrow.Status,
		escrow.HoldCreatedAt,
		escrow.AutoReleaseAt,
		escrow.ResolutionReason,
		escrow.Metadata,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrEscrowExists
		}
		return fmt.Errorf("failed to create escrow: %w", err)
	}

	escrow.CreatedAt = now
	escrow.UpdatedAt = now
	return nil
}

func (r *escrowRepository) GetByID(ctx context.Context, id string) (*entity.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrow_transactions WHERE id = $1`
	return scanEscrow(r.db.QueryRowContext(ctx, query, id))
}

func (r *escrowRepository) GetByBookingRef(ctx context.Context, bookingRef string) (*entity.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrow_transactions WHERE booking_ref = $1`
	return scanEscrow(r.db.QueryRowContext(ctx, query, bookingRef))
}

func (r *escrowRepository) GetByGatewayTxRef(ctx context.Context, gatewayTxRef string) (*entity.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrow_transactions WHERE gateway_tx_ref = $1`
	return scanEscrow(r.db.QueryRowContext(ctx, query, gatewayTxRef))
}

// Transition is the single conditional statement shared by the manual paths
// and the auto-release sweep. Of any two concurrent attempts exactly one sees
// a row; the guard makes released and refunded unrevisitable. Disputed stays
// eligible so an operator can resolve it into a terminal state.
func (r *escrowRepository) Transition(ctx context.Context, id string, to entity.EscrowStatus, actorRef, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE escrow_transactions
		SET status = $2, resolved_at = $3, resolved_by = $4,
		    resolution_reason = $5, updated_at = $3
		WHERE id = $1 AND status IN ('held', 'disputed')
	`
	result, err := r.db.ExecContext(ctx, query, id, to, now, actorRef, reason)
	if err != nil {
		return false, fmt.Errorf("failed to transition escrow: %w", err)
	}
	return oneRowAffected(result)
}

// AutoRelease moves every held escrow past its deadline in one statement and
// returns the transitioned rows so the caller can queue payouts for exactly
// the escrows this sweep won.
func (r *escrowRepository) AutoRelease(ctx context.Context, now time.Time, actorRef string) ([]*entity.Escrow, error) {
	query := `
		UPDATE escrow_transactions
		SET status = 'released', resolved_at = $1, resolved_by = $2,
		    resolution_reason = 'auto-release after grace period', updated_at = $1
		WHERE status = 'held' AND auto_release_at < $1
		RETURNING` + escrowColumns

	rows, err := r.db.QueryContext(ctx, query, now, actorRef)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-release escrows: %w", err)
	}
	defer rows.Close()

	var escrows []*entity.Escrow
	for rows.Next() {
		escrow, err := scanEscrowRows(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, escrow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auto-released escrows: %w", err)
	}
	return escrows, nil
}

func (r *escrowRepository) GetByStatus(ctx context.Context, status entity.EscrowStatus) ([]*entity.Escrow, error) {
	query := `SELECT` + escrowColumns + `
		FROM escrow_transactions
		WHERE status = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query escrows by status: %w", err)
	}
	defer rows.Close()

	var escrows []*entity.Escrow
	for rows.Next() {
		escrow, err := scanEscrowRows(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, escrow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escrows: %w", err)
	}
	return escrows, nil
}

func scanEscrow(row *sql.Row) (*entity.Escrow, error) {
	var escrow entity.Escrow
	err := row.Scan(
		&escrow.ID,
		&escrow.BookingRef,
		&escrow.PayerRef,
		&escrow.PayeeRef,
		&escrow.Amount,
		&escrow.Currency,
		&escrow.GatewayTxRef,
		&escrow.Status,
		&escrow.HoldCreatedAt,
		&escrow.AutoReleaseAt,
		&escrow.ResolvedAt,
		&escrow.ResolvedBy,
		&escrow.ResolutionReason,
		&escrow.Metadata,
		&escrow.CreatedAt,
		&escrow.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrEscrowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}
	return &escrow, nil
}

func scanEscrowRows(rows *sql.Rows) (*entity.Escrow, error) {
	var escrow entity.Escrow
	err := rows.Scan(
		&escrow.ID,
		&escrow.BookingRef,
		&escrow.PayerRef,
		&escrow.PayeeRef,
		&escrow.Amount,
		&escrow.Currency,
		&escrow.GatewayTxRef,
		&escrow.Status,
		&escrow.HoldCreatedAt,
		&escrow.AutoReleaseAt,
		&escrow.ResolvedAt,
		&escrow.ResolvedBy,
		&escrow.ResolutionReason,
		&escrow.Metadata,
		&escrow.CreatedAt,
		&escrow.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan escrow: %w", err)
	}
	return &escrow, nil
}
