package interfaces

import "context"

// InitializeRequest carries everything the payment provider needs to open
// a hosted checkout. Amount is in major currency units; adapters convert
// to the provider's minor-unit convention.
type InitializeRequest struct {
	Amount    int64
	Email     string
	Reference string
	Currency  string
	Metadata  map[string]any
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifyResult struct {
	Status    string
	Amount    int64
	Currency  string
	Reference string
}

// PaymentProvider turns an amount plus reference into a live checkout,
// answers whether a reference has settled, and reverses settled charges.
// Amounts are in major currency units throughout.
type PaymentProvider interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	Refund(ctx context.Context, reference string, amount int64) error
}
