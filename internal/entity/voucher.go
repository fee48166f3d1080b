package entity

import (
	"time"
)

type VoucherStatus string

const (
	VoucherStatusPending   VoucherStatus = "pending"
	VoucherStatusActive    VoucherStatus = "active"
	VoucherStatusUsed      VoucherStatus = "used"
	VoucherStatusExpired   VoucherStatus = "expired"
	VoucherStatusCancelled VoucherStatus = "cancelled"
)

// Voucher is a bearer-style stored-value instrument. Only the SHA-256 hash
// of the redemption code is persisted; the plaintext is disclosed once at
// issuance. Amounts are integer minor units.
type Voucher struct {
	ID              string        `json:"id" db:"id"`
	CodeHash        string        `json:"-" db:"code_hash"`
	CodeSuffix      string        `json:"code_suffix" db:"code_suffix"`
	Type            string        `json:"type" db:"voucher_type"`
	Currency        string        `json:"currency" db:"currency"`
	InitialAmount   int64         `json:"initial_amount" db:"initial_amount"`
	RemainingAmount int64         `json:"remaining_amount" db:"remaining_amount"`
	Status          VoucherStatus `json:"status" db:"status"`
	OwnerRef        *string       `json:"owner_ref,omitempty" db:"owner_ref"`
	PurchaserRef    *string       `json:"purchaser_ref,omitempty" db:"purchaser_ref"`
	RecipientRef    *string       `json:"recipient_ref,omitempty" db:"recipient_ref"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// PastExpiry reports whether the voucher carries an expiry that has elapsed.
func (v *Voucher) PastExpiry(now time.Time) bool {
	return v.ExpiresAt != nil && v.ExpiresAt.Before(now)
}

// OwnedBy reports whether the voucher is bound to the given owner.
func (v *Voucher) OwnedBy(ownerRef string) bool {
	return v.OwnerRef != nil && *v.OwnerRef == ownerRef
}

// RedemptionRecord is the idempotency anchor for a single debit. The pair
// (voucher_id, idempotency_key) is unique, so a retried terminal callback
// can never redeem twice.
type RedemptionRecord struct {
	ID             string    `json:"id" db:"id"`
	VoucherID      string    `json:"voucher_id" db:"voucher_id"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	Amount         int64     `json:"amount" db:"amount"`
	LocationRef    string    `json:"location_ref,omitempty" db:"location_ref"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
