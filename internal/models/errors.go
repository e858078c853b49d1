package models

import "errors"

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrBuyerRequired     = errors.New("buyer information is required")
	ErrItemRequired      = errors.New("exactly one of property id or investment id is required")
	ErrSelfPurchase      = errors.New("cannot open an escrow transaction for your own listing")
	ErrEscrowConflict    = errors.New("an active escrow transaction already exists for this property")
	ErrEscrowNotFound    = errors.New("escrow transaction not found")
	ErrInvalidTransition = errors.New("escrow transaction status does not allow this operation")
	ErrUnsupportedMethod = errors.New("payment method has no live provider integration")
	ErrLaunchInFlight    = errors.New("a payment initialization is already in progress")
	ErrSessionNotFound   = errors.New("purchase session not found")
)
