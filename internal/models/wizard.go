package models

type WizardPhase string

const (
	PhaseIdle                WizardPhase = "IDLE"
	PhaseCreatingEscrow      WizardPhase = "CREATING_ESCROW"
	PhaseInitializingPayment WizardPhase = "INITIALIZING_PAYMENT"
	PhaseAwaitingUserAction  WizardPhase = "AWAITING_USER_ACTION"
	PhaseVerifying           WizardPhase = "VERIFYING"
	PhaseCompleted           WizardPhase = "COMPLETED"
	PhaseFailed              WizardPhase = "FAILED"
)

// WizardState is the single tagged state of one purchase flow. CheckoutRef
// is set only in AwaitingUserAction and later phases; FailReason only in
// Failed. Collapsing the phase and its payload into one value rules out
// contradictory flag combinations.
type WizardState struct {
	Phase       WizardPhase `json:"phase"`
	CheckoutRef string      `json:"checkoutRef,omitempty"`
	FailReason  string      `json:"failReason,omitempty"`
}

// Step reports the wizard step (1 review, 2 payment, 3 confirmation) the
// UI should render for a phase.
func (s WizardState) Step() int {
	switch s.Phase {
	case PhaseCompleted:
		return 3
	case PhaseIdle, PhaseCreatingEscrow:
		return 1
	default:
		return 2
	}
}

// Terminal reports whether the flow has reached a final phase.
func (s WizardState) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}
