package entity

import (
	"encoding/json"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "active"
	ReservationStatusConsumed ReservationStatus = "consumed"
	ReservationStatusReleased ReservationStatus = "released"
	ReservationStatusExpired  ReservationStatus = "expired"
)

// Reservation is a short-lived hold on a bookable slot. At most one active
// reservation may exist per resource key; the constraint is enforced by a
// partial unique index, not by application checks.
type Reservation struct {
	ID          string            `json:"id" db:"id"`
	ResourceKey string            `json:"resource_key" db:"resource_key"`
	HolderRef   string            `json:"holder_ref" db:"holder_ref"`
	Status      ReservationStatus `json:"status" db:"status"`
	Payload     json.RawMessage   `json:"payload,omitempty" db:"payload"`
	ExpiresAt   time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the reservation TTL has elapsed at the given
// instant. Lazy checks and the sweep must use this same comparison.
func (r *Reservation) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// BookingParams is the part of the reservation payload the payment webhook
// needs to materialize the escrow once payment succeeds.
type BookingParams struct {
	BookingRef string `json:"booking_ref"`
	PayerRef   string `json:"payer_ref"`
	PayeeRef   string `json:"payee_ref"`
	Currency   string `json:"currency"`
}
