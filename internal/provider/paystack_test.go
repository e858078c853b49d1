package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *Paystack {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaystack("sk_test_secret", "https://example.com/payment/callback", zap.NewNop(), WithBaseURL(srv.URL))
}

func TestInitializeConvertsToMinorUnits(t *testing.T) {
	var got initializePayload
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         "REF1",
			},
		})
	})

	result, err := p.Initialize(context.Background(), interfaces.InitializeRequest{
		Amount:    2_010_000,
		Email:     "buyer@example.com",
		Reference: "REF1",
		Currency:  "NGN",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(201_000_000), got.Amount)
	assert.Equal(t, "REF1", result.Reference)
	assert.Equal(t, "https://checkout.paystack.com/abc", result.AuthorizationURL)
}

func TestInitializeSurfacesChargeLimit(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status": false, "data": {"providerData": {"maximum_amount": 500000}}}`))
	})

	_, err := p.Initialize(context.Background(), interfaces.InitializeRequest{
		Amount:    1_000_000,
		Email:     "buyer@example.com",
		Reference: "REF1",
		Currency:  "NGN",
	})
	require.Error(t, err)

	var limitErr *ChargeLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(500000), limitErr.Limit)
	assert.Contains(t, err.Error(), "500000")
}

func TestInitializeGenericFailure(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status": false, "message": "Invalid key"}`))
	})

	_, err := p.Initialize(context.Background(), interfaces.InitializeRequest{
		Amount:    1_000,
		Reference: "REF1",
		Currency:  "NGN",
	})
	require.Error(t, err)

	var limitErr *ChargeLimitError
	assert.False(t, errors.As(err, &limitErr))
	assert.Contains(t, err.Error(), "Invalid key")
}

func TestVerifyConvertsFromMinorUnits(t *testing.T) {
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/REF1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status":    "success",
				"amount":    201_000_000,
				"currency":  "NGN",
				"reference": "REF1",
			},
		})
	})

	result, err := p.Verify(context.Background(), "REF1")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, int64(2_010_000), result.Amount)
	assert.Equal(t, "REF1", result.Reference)
}

func TestRefundConvertsToMinorUnits(t *testing.T) {
	var got map[string]any
	p := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refund", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"status": true, "message": "Refund queued"})
	})

	require.NoError(t, p.Refund(context.Background(), "REF1", 2_010_000))
	assert.Equal(t, "REF1", got["transaction"])
	assert.Equal(t, float64(201_000_000), got["amount"])
}

func TestExtractChargeLimitFieldVariants(t *testing.T) {
	tests := []struct {
		body  string
		limit int64
		found bool
	}{
		{`{"success": false, "data": {"providerData": {"maximum_amount": 500000}}}`, 500000, true},
		{`{"status": false, "data": {"max_amount": 250000}}`, 250000, true},
		{`{"status": false, "maximumAmount": 100000}`, 100000, true},
		{`{"status": false, "meta": {"maxAmount": 75000}}`, 75000, true},
		{`{"status": false, "message": "declined"}`, 0, false},
		{`not json`, 0, false},
	}

	for _, tt := range tests {
		limit, found := ExtractChargeLimit([]byte(tt.body))
		assert.Equal(t, tt.found, found, "body=%s", tt.body)
		assert.Equal(t, tt.limit, limit, "body=%s", tt.body)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	p := NewPaystack("sk_test_secret", "", zap.NewNop())
	payload := []byte(`{"event":"charge.success"}`)

	mac := hmac.New(sha512.New, []byte("sk_test_secret"))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, p.VerifyWebhookSignature(signature, payload))
	assert.False(t, p.VerifyWebhookSignature("bad", payload))
	assert.False(t, p.VerifyWebhookSignature("", payload))
}

func TestStubSettlesReferences(t *testing.T) {
	stub := NewStub()

	result, err := stub.Initialize(context.Background(), interfaces.InitializeRequest{Amount: 100, Reference: "REF1"})
	require.NoError(t, err)
	assert.Equal(t, "REF1", result.Reference)

	verified, err := stub.Verify(context.Background(), "REF1")
	require.NoError(t, err)
	assert.Equal(t, "pending", verified.Status)

	stub.Settle("REF1")
	verified, err = stub.Verify(context.Background(), "REF1")
	require.NoError(t, err)
	assert.Equal(t, "success", verified.Status)
	assert.Equal(t, int64(100), verified.Amount)

	_, err = stub.Verify(context.Background(), "REF404")
	assert.Error(t, err)
}
