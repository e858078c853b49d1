package models

import "time"

// CheckoutStatusType tags inbound out-of-band checkout result messages.
const CheckoutStatusType = "ESCROW_PAYMENT_STATUS"

// CheckoutStatusMessage is the contract for checkout results delivered
// outside the provider SDK callback (embedded checkout surfaces publish
// these on the checkout status subject).
type CheckoutStatusMessage struct {
	Type    string                `json:"type"`
	Payload CheckoutStatusPayload `json:"payload"`
}

type CheckoutStatusPayload struct {
	Status    string `json:"status"` // success | error
	EscrowID  string `json:"escrowId"`
	PaymentID string `json:"paymentId,omitempty"`
	Reference string `json:"reference,omitempty"`
	TxRef     string `json:"txRef,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Ref returns the provider reference, preferring the explicit reference
// field over the client-generated txRef.
func (p CheckoutStatusPayload) Ref() string {
	if p.Reference != "" {
		return p.Reference
	}
	return p.TxRef
}

// StateChangedEvent is published to Kafka on every escrow/wizard state
// transition.
type StateChangedEvent struct {
	EscrowID      string    `json:"escrow_id"`
	PaymentID     string    `json:"payment_id,omitempty"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	Timestamp     time.Time `json:"timestamp"`
}

// NotificationEvent notifies a buyer or seller about escrow activity.
type NotificationEvent struct {
	Recipient string         `json:"recipient"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
