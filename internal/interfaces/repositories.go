package interfaces

import (
	"context"
	"time"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
)

// EscrowRepository defines the contract for escrow transaction data access.
type EscrowRepository interface {
	Create(ctx context.Context, tx *models.EscrowTransaction) error
	GetByID(ctx context.Context, id string) (*models.EscrowTransaction, error)
	FindActiveByProperty(ctx context.Context, propertyID string) (*models.EscrowTransaction, error)
	List(ctx context.Context, filter models.EscrowFilter) ([]models.EscrowTransaction, int64, error)
	// TransitionStatus performs a guarded state change and reports the number
	// of rows moved; zero means the escrow was not in the expected state.
	TransitionStatus(ctx context.Context, id string, from, to models.EscrowStatus) (int64, error)
	// MarkFunded records the payment method, provider reference and paid
	// timestamp while moving pending -> payment_received. Zero rows means the
	// escrow was already funded (or cancelled), not an error.
	MarkFunded(ctx context.Context, id string, method models.PaymentMethod, reference string, paidAt time.Time) (int64, error)
}

// PendingStore is the durable record of in-flight payment attempts. Every
// method fails soft: storage trouble is logged and degrades to an empty
// result or no-op so the payment flow stays usable.
type PendingStore interface {
	Entries() []models.PendingPayment
	Save(entry models.PendingPayment)
	Update(paymentID string, patch models.PendingPaymentPatch) *models.PendingPayment
	Remove(paymentID string)
	// FindForItem resolves a resumable attempt. The store is shared across
	// all callers, so a non-empty buyerID restricts matches to that buyer's
	// own attempts.
	FindForItem(buyerID, escrowID, propertyID, investmentID string) *models.PendingPayment
}

// Locker is a coarse per-key mutual exclusion used to keep verification
// idempotent under duplicate delivery.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher emits a keyed event to the messaging backbone.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value any) error
}
