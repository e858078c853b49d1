package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

// CreateEscrowInput describes a purchase to open an escrow transaction
// for. Exactly one of PropertyID and InvestmentID must be set. SellerID
// may be empty when the listing has no resolvable owner.
type CreateEscrowInput struct {
	PropertyID    string         `json:"propertyId,omitempty"`
	InvestmentID  string         `json:"investmentId,omitempty"`
	BuyerID       string         `json:"buyerId"`
	SellerID      string         `json:"sellerId,omitempty"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency,omitempty"`
	PaymentMethod string         `json:"paymentMethod,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EscrowService opens and settles escrow transactions against Postgres
// and notifies both parties through the notification topic. Rejecting a
// funded escrow refunds the buyer through the payment provider.
type EscrowService struct {
	repo          interfaces.EscrowRepository
	notifications interfaces.EventPublisher
	provider      interfaces.PaymentProvider
	currency      string
}

func NewEscrowService(repo interfaces.EscrowRepository, notifications interfaces.EventPublisher, paymentProvider interfaces.PaymentProvider, currency string) *EscrowService {
	return &EscrowService{repo: repo, notifications: notifications, provider: paymentProvider, currency: currency}
}

// Create validates the purchase and opens a pending escrow transaction.
// The returned id is the hard precondition for any payment initialization.
func (s *EscrowService) Create(ctx context.Context, input CreateEscrowInput) (*models.EscrowTransaction, error) {
	if input.BuyerID == "" {
		return nil, models.ErrBuyerRequired
	}
	if input.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if (input.PropertyID == "") == (input.InvestmentID == "") {
		return nil, models.ErrItemRequired
	}
	if input.SellerID != "" && input.SellerID == input.BuyerID {
		return nil, models.ErrSelfPurchase
	}

	if input.PropertyID != "" {
		existing, err := s.repo.FindActiveByProperty(ctx, input.PropertyID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if existing != nil {
			return nil, models.ErrEscrowConflict
		}
	}

	entityType := models.EntityProperty
	if input.InvestmentID != "" {
		entityType = models.EntityInvestment
	}
	currency := input.Currency
	if currency == "" {
		currency = s.currency
	}
	method := models.PaymentMethod(input.PaymentMethod)
	if method == "" {
		method = models.MethodPaystack
	}

	tx := &models.EscrowTransaction{
		ID:            "ESC-" + uuid.NewString(),
		EntityType:    entityType,
		PropertyID:    input.PropertyID,
		InvestmentID:  input.InvestmentID,
		BuyerID:       input.BuyerID,
		SellerID:      input.SellerID,
		Amount:        input.Amount,
		Fee:           models.EscrowFee(input.Amount),
		TotalAmount:   models.TotalDue(input.Amount),
		Currency:      currency,
		PaymentMethod: method,
		Status:        models.EscrowPending,
		Metadata:      input.Metadata,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Escrow transaction created",
		zap.String("escrow_id", tx.ID),
		zap.String("buyer_id", tx.BuyerID),
		zap.Int64("total_amount", tx.TotalAmount),
	)

	if tx.SellerID != "" {
		s.notify(ctx, tx.SellerID, "escrow_created",
			"Escrow created",
			fmt.Sprintf("An escrow transaction was created for %s %s", tx.EntityType, tx.ItemID()),
			map[string]any{"escrowId": tx.ID})
	}

	return tx, nil
}

func (s *EscrowService) Get(ctx context.Context, id string) (*models.EscrowTransaction, error) {
	tx, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEscrowNotFound
	}
	return tx, err
}

func (s *EscrowService) List(ctx context.Context, filter models.EscrowFilter) ([]models.EscrowTransaction, int64, error) {
	return s.repo.List(ctx, filter)
}

// MarkFunded moves pending -> payment_received and records how the escrow
// was paid. Calling it again for an already funded escrow is a no-op, which
// is what keeps verification idempotent.
func (s *EscrowService) MarkFunded(ctx context.Context, id string, method models.PaymentMethod, reference string) (bool, error) {
	rows, err := s.repo.MarkFunded(ctx, id, method, reference, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	telemetry.Logger.Info("Escrow funded",
		zap.String("escrow_id", id),
		zap.String("reference", reference),
	)

	tx, err := s.repo.GetByID(ctx, id)
	if err == nil {
		s.notify(ctx, tx.BuyerID, "escrow_status_changed",
			"Payment received",
			fmt.Sprintf("Escrow %s status changed to %s", id, models.EscrowPaymentReceived), nil)
		if tx.SellerID != "" {
			s.notify(ctx, tx.SellerID, "escrow_payment_received",
				"Payment received",
				fmt.Sprintf("Escrow %s has been funded", id), nil)
		}
	}
	return true, nil
}

// Reject closes a pending or funded escrow. A funded escrow is refunded
// to the buyer in full; the guarded transition runs first so a concurrent
// reject can never refund twice.
func (s *EscrowService) Reject(ctx context.Context, id, reason string) (*models.EscrowTransaction, error) {
	tx, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "no reason given"
	}

	from := tx.Status
	if from != models.EscrowPending && from != models.EscrowPaymentReceived {
		return nil, models.ErrInvalidTransition
	}
	rows, err := s.repo.TransitionStatus(ctx, id, from, models.EscrowRejected)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, models.ErrInvalidTransition
	}

	if from == models.EscrowPaymentReceived {
		if err := s.provider.Refund(ctx, tx.PaymentReference, tx.TotalAmount); err != nil {
			// The escrow is already rejected; the refund has to be
			// reconciled out of band, so surface the failure.
			telemetry.Logger.Error("Refund failed after rejection",
				zap.String("escrow_id", id),
				zap.String("reference", tx.PaymentReference),
				zap.Error(err),
			)
			return nil, err
		}
	}

	telemetry.Logger.Info("Escrow transaction rejected",
		zap.String("escrow_id", id),
		zap.String("previous_status", string(from)),
		zap.String("reason", reason),
	)

	s.notify(ctx, tx.BuyerID, "escrow_rejected",
		"Escrow rejected",
		fmt.Sprintf("Escrow %s was rejected: %s", id, reason), nil)
	if tx.SellerID != "" {
		s.notify(ctx, tx.SellerID, "escrow_rejected",
			"Escrow rejected",
			fmt.Sprintf("Escrow %s was rejected", id), nil)
	}

	return s.repo.GetByID(ctx, id)
}

func (s *EscrowService) notify(ctx context.Context, recipient, kind, title, message string, data map[string]any) {
	event := models.NotificationEvent{
		Recipient: recipient,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if err := s.notifications.Publish(ctx, recipient, event); err != nil {
		telemetry.Logger.Warn("Failed to publish notification",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
	}
}
