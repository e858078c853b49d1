package models

import "time"

type EscrowStatus string

const (
	EscrowPending         EscrowStatus = "pending"
	EscrowPaymentReceived EscrowStatus = "payment_received"
	EscrowApproved        EscrowStatus = "approved"
	EscrowCompleted       EscrowStatus = "completed"
	EscrowRejected        EscrowStatus = "rejected"
	EscrowCancelled       EscrowStatus = "cancelled"
)

type RelatedEntityType string

const (
	EntityProperty   RelatedEntityType = "property"
	EntityInvestment RelatedEntityType = "investment"
)

// EscrowTransaction is the authoritative record of funds held in trust
// between a buyer and a seller until release conditions are met.
type EscrowTransaction struct {
	ID               string            `json:"id"`
	EntityType       RelatedEntityType `json:"entityType"`
	PropertyID       string            `json:"propertyId,omitempty"`
	InvestmentID     string            `json:"investmentId,omitempty"`
	BuyerID          string            `json:"buyerId"`
	SellerID         string            `json:"sellerId,omitempty"`
	Amount           int64             `json:"amount"`
	Fee              int64             `json:"fee"`
	TotalAmount      int64             `json:"totalAmount"`
	Currency         string            `json:"currency"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	Status           EscrowStatus      `json:"status"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	PaidAt           *time.Time        `json:"paidAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// ItemID returns the purchased item's identifier regardless of entity type.
func (t *EscrowTransaction) ItemID() string {
	if t.EntityType == EntityInvestment {
		return t.InvestmentID
	}
	return t.PropertyID
}

// EscrowFilter selects escrow transactions for listing. BuyerID and
// SellerID are OR-combined when both are set.
type EscrowFilter struct {
	BuyerID  string
	SellerID string
	Status   EscrowStatus
	Page     int
	Limit    int
}

// EscrowFee is the flat 0.5% escrow fee, rounded to the nearest integer
// currency unit. Identical for property purchases and investment funding.
func EscrowFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*5 + 500) / 1000
}

// TotalDue is the amount the buyer is charged: item price plus escrow fee.
func TotalDue(amount int64) int64 {
	return amount + EscrowFee(amount)
}
