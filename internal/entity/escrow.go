package entity

import (
	"encoding/json"
	"time"
)

type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusDisputed EscrowStatus = "disputed"
)

// Escrow is a two-party payment hold tied 1:1 to a booking. Transitions out
// of held are one-way; released and refunded are terminal, disputed freezes
// the auto-release sweep until an operator resolves it.
type Escrow struct {
	ID               string          `json:"id" db:"id"`
	BookingRef       string          `json:"booking_ref" db:"booking_ref"`
	PayerRef         string          `json:"payer_ref" db:"payer_ref"`
	PayeeRef         string          `json:"payee_ref" db:"payee_ref"`
	Amount           int64           `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	GatewayTxRef     string          `json:"gateway_tx_ref" db:"gateway_tx_ref"`
	Status           EscrowStatus    `json:"status" db:"status"`
	HoldCreatedAt    time.Time       `json:"hold_created_at" db:"hold_created_at"`
	AutoReleaseAt    time.Time       `json:"auto_release_at" db:"auto_release_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy       *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionReason string          `json:"resolution_reason,omitempty" db:"resolution_reason"`
	Metadata         json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}
