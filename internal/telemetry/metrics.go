package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateTransitions counts wizard/escrow state transitions by target phase.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_payment_state_transitions_total",
		Help: "Number of escrow payment state transitions by target state.",
	}, []string{"state"})

	// VerificationResults counts verification outcomes in the three-state vocabulary.
	VerificationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_payment_verifications_total",
		Help: "Number of payment verification calls by normalized result.",
	}, []string{"result"})

	// ProviderInitializations counts checkout initialization attempts.
	ProviderInitializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_provider_initializations_total",
		Help: "Number of provider checkout initializations by outcome.",
	}, []string{"outcome"})
)
