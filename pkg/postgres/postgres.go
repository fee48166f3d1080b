package postgres

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/pawsuite/paycore/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL")
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
			id UUID PRIMARY KEY,
			resource_key VARCHAR(255) NOT NULL,
			holder_ref VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			payload JSONB,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS vouchers (
			id UUID PRIMARY KEY,
			code_hash CHAR(64) UNIQUE NOT NULL,
			code_suffix VARCHAR(8) NOT NULL,
			voucher_type VARCHAR(20) NOT NULL DEFAULT 'gift',
			initial_amount BIGINT NOT NULL,
			remaining_amount BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			owner_ref VARCHAR(255),
			purchaser_ref VARCHAR(255),
			recipient_ref VARCHAR(255),
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CHECK (remaining_amount >= 0 AND remaining_amount <= initial_amount)
		)`,

		`CREATE TABLE IF NOT EXISTS redemption_records (
			id UUID PRIMARY KEY,
			voucher_id UUID NOT NULL REFERENCES vouchers(id),
			idempotency_key VARCHAR(255) NOT NULL,
			amount BIGINT NOT NULL,
			location_ref VARCHAR(255),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (voucher_id, idempotency_key)
		)`,

		`CREATE TABLE IF NOT EXISTS escrow_transactions (
			id UUID PRIMARY KEY,
			booking_ref VARCHAR(255) UNIQUE NOT NULL,
			payer_ref VARCHAR(255) NOT NULL,
			payee_ref VARCHAR(255) NOT NULL,
			amount BIGINT NOT NULL,
			currency CHAR(3) NOT NULL,
			gateway_tx_ref VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'held',
			hold_created_at TIMESTAMPTZ NOT NULL,
			auto_release_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ,
			resolved_by VARCHAR(255),
			resolution_reason TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		// One live hold per resource. The partial index closes the
		// check-then-insert race: a second concurrent insert fails with a
		// unique violation instead of creating a double hold.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_resource
			ON reservations(resource_key) WHERE status = 'active'`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_expires_at ON reservations(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_vouchers_owner_ref ON vouchers(owner_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_vouchers_status ON vouchers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_vouchers_owner_created ON vouchers(owner_ref, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_redemptions_voucher_id ON redemption_records(voucher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_status ON escrow_transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_auto_release ON escrow_transactions(auto_release_at) WHERE status = 'held'`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_gateway_tx_ref ON escrow_transactions(gateway_tx_ref)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
