package entity

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "succeeded"
	PaymentEventFailed    PaymentEventType = "failed"
	PaymentEventCancelled PaymentEventType = "cancelled"
)

// PaymentEvent is the payload the external payment gateway delivers to the
// webhook endpoint. Delivery is at-least-once; processing must be idempotent
// per ExternalTxRef.
type PaymentEvent struct {
	Event         PaymentEventType `json:"event"`
	HoldRef       string           `json:"hold_ref"`
	Amount        int64            `json:"amount"`
	ExternalTxRef string           `json:"external_tx_ref"`
}
