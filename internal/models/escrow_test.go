package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscrowFee(t *testing.T) {
	tests := []struct {
		amount int64
		fee    int64
	}{
		{0, 0},
		{-5, 0},
		{99, 0},       // 0.495 rounds down
		{100, 1},      // 0.5 rounds up
		{1_000_000, 5_000},
		{2_000_000, 10_000},
		{450_000, 2_250},
		{333, 2}, // 1.665 rounds up
	}

	for _, tt := range tests {
		assert.Equal(t, tt.fee, EscrowFee(tt.amount), "fee for %d", tt.amount)
	}
}

func TestTotalDue(t *testing.T) {
	assert.Equal(t, int64(1_005_000), TotalDue(1_000_000))
	assert.Equal(t, int64(2_010_000), TotalDue(2_000_000))
	assert.Equal(t, int64(0), TotalDue(0))
}

func TestNormalizeStatus(t *testing.T) {
	completed := []string{"completed", "success", "successful", "SUCCESS", " payment_completed ", "approved"}
	for _, raw := range completed {
		assert.Equal(t, PaymentCompleted, NormalizeStatus(raw), "raw=%q", raw)
	}

	processing := []string{"processing", "pending", "pending_payment", "Pending"}
	for _, raw := range processing {
		assert.Equal(t, PaymentProcessing, NormalizeStatus(raw), "raw=%q", raw)
	}

	failed := []string{"failed", "rejected", "abandoned", "", "garbage"}
	for _, raw := range failed {
		assert.Equal(t, PaymentFailed, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestWizardStateStep(t *testing.T) {
	assert.Equal(t, 1, WizardState{Phase: PhaseIdle}.Step())
	assert.Equal(t, 1, WizardState{Phase: PhaseCreatingEscrow}.Step())
	assert.Equal(t, 2, WizardState{Phase: PhaseInitializingPayment}.Step())
	assert.Equal(t, 2, WizardState{Phase: PhaseAwaitingUserAction, CheckoutRef: "R"}.Step())
	assert.Equal(t, 2, WizardState{Phase: PhaseVerifying}.Step())
	assert.Equal(t, 2, WizardState{Phase: PhaseFailed}.Step())
	assert.Equal(t, 3, WizardState{Phase: PhaseCompleted}.Step())
}

func TestWizardStateTerminal(t *testing.T) {
	assert.True(t, WizardState{Phase: PhaseCompleted}.Terminal())
	assert.True(t, WizardState{Phase: PhaseFailed}.Terminal())
	assert.False(t, WizardState{Phase: PhaseAwaitingUserAction}.Terminal())
	assert.False(t, WizardState{Phase: PhaseIdle}.Terminal())
}

func TestCheckoutPayloadRef(t *testing.T) {
	assert.Equal(t, "REF1", CheckoutStatusPayload{Reference: "REF1", TxRef: "TX1"}.Ref())
	assert.Equal(t, "TX1", CheckoutStatusPayload{TxRef: "TX1"}.Ref())
	assert.Equal(t, "", CheckoutStatusPayload{}.Ref())
}
