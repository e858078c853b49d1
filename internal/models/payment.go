package models

import (
	"strings"
	"time"
)

type PaymentMethod string

const (
	MethodPaystack PaymentMethod = "paystack"
	// MethodCard is accepted as input but has no live provider integration;
	// initialization rejects it before any network call.
	MethodCard PaymentMethod = "card"
)

// PaymentStatus is the client-facing three-state vocabulary. The provider
// and backend report a wider set of states which NormalizeStatus folds down.
type PaymentStatus string

const (
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// NormalizeStatus maps a raw provider/backend status into the three-state
// model. Unknown values are treated as failed.
func NormalizeStatus(raw string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "success", "successful", "payment_completed", "approved":
		return PaymentCompleted
	case "processing", "pending", "pending_payment":
		return PaymentProcessing
	default:
		return PaymentFailed
	}
}

// PendingPayment is the durable record of one initialized-but-unconfirmed
// payment attempt. It exists so an abandoned checkout can be resumed after
// a restart without creating a second escrow/payment pair.
type PendingPayment struct {
	EscrowID      string        `json:"escrowId"`
	PaymentID     string        `json:"paymentId,omitempty"`
	TxRef         string        `json:"txRef"`
	BuyerID       string        `json:"buyerId,omitempty"`
	PropertyID    string        `json:"propertyId,omitempty"`
	InvestmentID  string        `json:"investmentId,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Status        PaymentStatus `json:"status"`
	CheckoutURL   string        `json:"checkoutUrl,omitempty"`
	StoredAt      time.Time     `json:"storedAt"`
}

// PendingPaymentPatch is a partial update merged into a stored entry.
// Zero-valued fields are left untouched.
type PendingPaymentPatch struct {
	TxRef       string
	Status      PaymentStatus
	CheckoutURL string
}
