package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
)

// seedAttempt creates an escrow plus its stored processing attempt, the
// state a session leaves behind once checkout has been launched.
func seedAttempt(t *testing.T, r *rig, propertyID string) (escrowID, paymentID, txRef string) {
	t.Helper()
	ctx := context.Background()

	tx, err := r.escrow.Create(ctx, CreateEscrowInput{
		PropertyID: propertyID, BuyerID: "buyer-1", Amount: 200_000,
	})
	require.NoError(t, err)

	attempt, err := r.orc.InitializePayment(ctx, InitializeInput{
		EscrowID: tx.ID,
		Amount:   tx.TotalAmount,
		Email:    "buyer@example.com",
	})
	require.NoError(t, err)
	return tx.ID, attempt.PaymentID, attempt.TxRef
}

func TestVerifyCompletedFundsEscrowAndClearsPending(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	escrowID, paymentID, txRef := seedAttempt(t, r, "prop-1")

	r.stub.Settle(txRef)

	status, err := r.verifier.Verify(ctx, escrowID, paymentID, txRef)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, status)

	got, err := r.escrow.Get(ctx, escrowID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowPaymentReceived, got.Status)
	assert.Equal(t, txRef, got.PaymentReference)

	assert.Empty(t, r.store.Entries())
}

func TestVerifyCompletedTwiceFundsOnce(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	escrowID, paymentID, txRef := seedAttempt(t, r, "prop-1")
	r.stub.Settle(txRef)

	for i := 0; i < 2; i++ {
		status, err := r.verifier.Verify(ctx, escrowID, paymentID, txRef)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCompleted, status)
	}

	assert.Equal(t, 1, r.repo.fundedCalls)

	var transitions int
	for _, e := range r.published.events {
		if _, ok := e.(models.StateChangedEvent); ok {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
}

func TestVerifyProcessingLeavesEverythingInPlace(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	escrowID, paymentID, txRef := seedAttempt(t, r, "prop-1")

	// Not settled yet, so the stub reports pending.
	status, err := r.verifier.Verify(ctx, escrowID, paymentID, txRef)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, status)

	got, err := r.escrow.Get(ctx, escrowID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowPending, got.Status)

	entries := r.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.PaymentProcessing, entries[0].Status)
}

func TestVerifyFailureKeepsPendingEntryForRetry(t *testing.T) {
	p := &scriptedProvider{verifyStatus: "failed"}
	r := newRigWithProvider(t, p)
	ctx := context.Background()
	escrowID, paymentID, txRef := seedAttempt(t, r, "prop-1")

	status, err := r.verifier.Verify(ctx, escrowID, paymentID, txRef)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, status)

	entries := r.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.PaymentFailed, entries[0].Status)

	got, err := r.escrow.Get(ctx, escrowID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowPending, got.Status)
}

func TestVerifyProviderErrorSurfacesAndKeepsEntry(t *testing.T) {
	p := &scriptedProvider{verifyErr: errors.New("provider unreachable")}
	r := newRigWithProvider(t, p)
	escrowID, paymentID, txRef := seedAttempt(t, r, "prop-1")

	status, err := r.verifier.Verify(context.Background(), escrowID, paymentID, txRef)
	assert.Error(t, err)
	assert.Equal(t, models.PaymentFailed, status)
	assert.Len(t, r.store.Entries(), 1)
}

func TestVerifyHeldLockReportsProcessing(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	escrowID, paymentID, txRef := seedAttempt(t, r, "prop-1")
	r.stub.Settle(txRef)

	locker := newMemLocker()
	_, err := locker.Acquire(ctx, "payment_verify:"+paymentID, time.Minute)
	require.NoError(t, err)

	verifier := NewVerificationService(r.escrow, r.store, r.stub, locker, r.published)
	status, err := verifier.Verify(ctx, escrowID, paymentID, txRef)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, status)

	// The concurrent delivery was deferred, not applied.
	got, err := r.escrow.Get(ctx, escrowID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowPending, got.Status)
}
