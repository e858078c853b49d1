package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
)

// Stub is an in-process test double for the payment provider, selected by
// configuration (PAYMENT_PROVIDER=stub). It exists so the checkout flow can
// be exercised without provider credentials; it is wired explicitly rather
// than triggered by a hostname check.
type Stub struct {
	mu        sync.Mutex
	settled   map[string]int64
	initiated map[string]int64
	refunded  map[string]int64
}

func NewStub() *Stub {
	return &Stub{
		settled:   make(map[string]int64),
		initiated: make(map[string]int64),
		refunded:  make(map[string]int64),
	}
}

func (s *Stub) Initialize(_ context.Context, req interfaces.InitializeRequest) (*interfaces.InitializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiated[req.Reference] = req.Amount
	return &interfaces.InitializeResult{
		AuthorizationURL: "https://checkout.invalid/" + req.Reference,
		AccessCode:       "stub_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (s *Stub) Verify(_ context.Context, reference string) (*interfaces.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount, ok := s.settled[reference]; ok {
		return &interfaces.VerifyResult{Status: "success", Amount: amount, Currency: "NGN", Reference: reference}, nil
	}
	if amount, ok := s.initiated[reference]; ok {
		return &interfaces.VerifyResult{Status: "pending", Amount: amount, Currency: "NGN", Reference: reference}, nil
	}
	return nil, fmt.Errorf("unknown reference %q", reference)
}

func (s *Stub) Refund(_ context.Context, reference string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunded[reference] = amount
	return nil
}

// Refunded reports the amount refunded against a reference, if any.
func (s *Stub) Refunded(reference string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.refunded[reference]
	return amount, ok
}

// Settle marks a reference as paid so a subsequent Verify reports success.
func (s *Stub) Settle(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount, ok := s.initiated[reference]; ok {
		s.settled[reference] = amount
	} else {
		s.settled[reference] = 0
	}
}
