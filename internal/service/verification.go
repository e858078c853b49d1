package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

const verifyLockTTL = 30 * time.Second

// VerificationService asks the provider whether a reference has settled
// and reconciles escrow and pending-payment state with the answer.
//
// Verification is idempotent: duplicate deliveries (SDK callback plus an
// out-of-band message for the same attempt) are serialized with a per
// payment lock, and the funded transition is guarded in SQL, so a second
// completed verification is a harmless no-op.
type VerificationService struct {
	escrow   *EscrowService
	store    interfaces.PendingStore
	provider interfaces.PaymentProvider
	locker   interfaces.Locker
	events   interfaces.EventPublisher
}

func NewVerificationService(
	escrow *EscrowService,
	store interfaces.PendingStore,
	paymentProvider interfaces.PaymentProvider,
	locker interfaces.Locker,
	events interfaces.EventPublisher,
) *VerificationService {
	return &VerificationService{
		escrow:   escrow,
		store:    store,
		provider: paymentProvider,
		locker:   locker,
		events:   events,
	}
}

// Verify resolves the provider status for reference and applies the side
// effects for the normalized result:
//
//   - completed: mark the escrow funded, drop the pending entry
//   - processing: leave the pending entry untouched, caller may retry
//   - failed: record the failure on the pending entry but keep it, so a
//     manual retry stays possible
func (v *VerificationService) Verify(ctx context.Context, escrowID, paymentID, reference string) (models.PaymentStatus, error) {
	lockKey := fmt.Sprintf("payment_verify:%s", paymentID)
	locked, err := v.locker.Acquire(ctx, lockKey, verifyLockTTL)
	if err != nil {
		telemetry.Logger.Warn("Verification lock unavailable, proceeding unguarded",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	} else if !locked {
		// Another delivery of the same result is already being handled.
		return models.PaymentProcessing, nil
	} else {
		defer v.locker.Release(ctx, lockKey)
	}

	result, err := v.provider.Verify(ctx, reference)
	if err != nil {
		telemetry.VerificationResults.WithLabelValues("error").Inc()
		// The pending entry survives so the user can retry.
		return models.PaymentFailed, err
	}

	status := models.NormalizeStatus(result.Status)
	telemetry.VerificationResults.WithLabelValues(string(status)).Inc()

	switch status {
	case models.PaymentCompleted:
		funded, err := v.escrow.MarkFunded(ctx, escrowID, models.MethodPaystack, result.Reference)
		if err != nil {
			return models.PaymentFailed, err
		}
		v.store.Remove(paymentID)
		if funded {
			v.publishTransition(ctx, escrowID, paymentID, models.EscrowPending, models.EscrowPaymentReceived)
		}
		return models.PaymentCompleted, nil

	case models.PaymentProcessing:
		// Not an error: still settling, try again shortly.
		return models.PaymentProcessing, nil

	default:
		v.store.Update(paymentID, models.PendingPaymentPatch{Status: models.PaymentFailed})
		return models.PaymentFailed, nil
	}
}

func (v *VerificationService) publishTransition(ctx context.Context, escrowID, paymentID string, from, to models.EscrowStatus) {
	event := models.StateChangedEvent{
		EscrowID:      escrowID,
		PaymentID:     paymentID,
		State:         string(to),
		PreviousState: string(from),
		Timestamp:     time.Now().UTC(),
	}
	if err := v.events.Publish(ctx, escrowID, event); err != nil {
		telemetry.Logger.Error("Failed to publish state change",
			zap.String("escrow_id", escrowID),
			zap.Error(err),
		)
	}
	telemetry.StateTransitions.WithLabelValues(string(to)).Inc()

	telemetry.Logger.Info("Escrow payment state transition",
		zap.String("escrow_id", escrowID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
}
