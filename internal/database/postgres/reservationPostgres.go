package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pawsuite/paycore/internal/entity"
)

type reservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

// Create inserts the reservation row. The partial unique index
// idx_reservations_active_resource rejects a second active hold on the same
// resource key, so there is no check-then-insert window.
func (r *reservationRepository) Create(ctx context.Context, reservation *entity.Reservation) error {
	query := `
		INSERT INTO reservations (
			id, resource_key, holder_ref, status, payload,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		reservation.ID,
		reservation.ResourceKey,
		reservation.HolderRef,
		reservation.Status,
		reservation.Payload,
		reservation.ExpiresAt,
		now,
		now,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return entity.ErrSlotTaken
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*entity.Reservation, error) {
	query := `
		SELECT id, resource_key, holder_ref, status, payload,
		       expires_at, created_at, updated_at
		FROM reservations
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *reservationRepository) GetActiveByResourceKey(ctx context.Context, resourceKey string) (*entity.Reservation, error) {
	query := `
		SELECT id, resource_key, holder_ref, status, payload,
		       expires_at, created_at, updated_at
		FROM reservations
		WHERE resource_key = $1 AND status = 'active'
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, resourceKey))
}

// MarkConsumed flips active→consumed, but only while the TTL has not
// elapsed. A consume racing the sweep at the expiry boundary wins if it
// reaches the store first; afterwards the guard fails and the caller sees
// zero rows.
func (r *reservationRepository) MarkConsumed(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE reservations
		SET status = 'consumed', updated_at = $2
		WHERE id = $1 AND status = 'active' AND expires_at > $2
	`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume reservation: %w", err)
	}
	return oneRowAffected(result)
}

func (r *reservationRepository) MarkReleased(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE reservations
		SET status = 'released', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to release reservation: %w", err)
	}
	return oneRowAffected(result)
}

// ExpireBefore is the sweep. It only touches rows still active, so it never
// overwrites a consume or release that landed first.
func (r *reservationRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE reservations
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (r *reservationRepository) scanOne(row *sql.Row) (*entity.Reservation, error) {
	var reservation entity.Reservation
	err := row.Scan(
		&reservation.ID,
		&reservation.ResourceKey,
		&reservation.HolderRef,
		&reservation.Status,
		&reservation.Payload,
		&reservation.ExpiresAt,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &reservation, nil
}

// oneRowAffected reports whether a conditional update moved exactly the
// targeted row.
func oneRowAffected(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// isUniqueViolation reports a Postgres unique constraint error (23505).
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
