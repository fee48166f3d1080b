package entity

import "errors"

var (
	// Reservation errors
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation is not active")
	ErrSlotTaken            = errors.New("resource is already reserved")

	// Voucher errors
	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrVoucherClaimed       = errors.New("voucher already claimed by another owner")
	ErrVoucherNotRedeemable = errors.New("voucher is not redeemable")
	ErrVoucherExpired       = errors.New("voucher has expired")
	ErrInsufficientBalance  = errors.New("insufficient remaining value")

	// Escrow errors
	ErrEscrowNotFound = errors.New("escrow not found")
	ErrEscrowExists   = errors.New("escrow already exists for booking")
	ErrEscrowNotHeld  = errors.New("escrow is not in held status")

	// General errors
	ErrUnauthorized = errors.New("unauthorized access")
	ErrInvalidInput = errors.New("invalid input")
)
