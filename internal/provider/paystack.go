package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
)

const DefaultBaseURL = "https://api.paystack.co"

// ChargeLimitError reports that the requested amount exceeds the provider's
// maximum single charge. Limit is in major currency units.
type ChargeLimitError struct {
	Limit int64
}

func (e *ChargeLimitError) Error() string {
	return fmt.Sprintf("amount exceeds the provider's maximum charge of %d; use a different payment rail or split the payment", e.Limit)
}

// Paystack calls the Paystack transaction API. Amounts cross the wire in
// kobo (minor units), so every request multiplies by 100 and every
// response divides back.
type Paystack struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
	logger      *zap.Logger
}

type Option func(*Paystack)

func WithBaseURL(url string) Option {
	return func(p *Paystack) { p.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Paystack) { p.httpClient = c }
}

func NewPaystack(secretKey, callbackURL string, logger *zap.Logger, opts ...Option) *Paystack {
	p := &Paystack{
		baseURL:     DefaultBaseURL,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type initializePayload struct {
	Amount      int64          `json:"amount"`
	Email       string         `json:"email"`
	Reference   string         `json:"reference"`
	Currency    string         `json:"currency"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Channels    []string       `json:"channels"`
}

func (p *Paystack) Initialize(ctx context.Context, req interfaces.InitializeRequest) (*interfaces.InitializeResult, error) {
	payload := initializePayload{
		Amount:      req.Amount * 100,
		Email:       req.Email,
		Reference:   req.Reference,
		Currency:    req.Currency,
		Metadata:    req.Metadata,
		CallbackURL: p.callbackURL,
		Channels:    []string{"card", "bank", "ussd", "qr", "mobile_money", "bank_transfer"},
	}

	body, err := p.post(ctx, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if !result.Status {
		if limit, ok := ExtractChargeLimit(body); ok {
			return nil, &ChargeLimitError{Limit: limit}
		}
		if result.Message == "" {
			result.Message = "payment initialization failed"
		}
		return nil, errors.New(result.Message)
	}

	return &interfaces.InitializeResult{
		AuthorizationURL: result.Data.AuthorizationURL,
		AccessCode:       result.Data.AccessCode,
		Reference:        result.Data.Reference,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*interfaces.VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status    string `json:"status"`
			Amount    int64  `json:"amount"`
			Currency  string `json:"currency"`
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.Status {
		if result.Message == "" {
			result.Message = "payment verification failed"
		}
		return nil, errors.New(result.Message)
	}

	return &interfaces.VerifyResult{
		Status:    result.Data.Status,
		Amount:    result.Data.Amount / 100,
		Currency:  result.Data.Currency,
		Reference: result.Data.Reference,
	}, nil
}

// Refund reverses a settled charge. Amount is in major units.
func (p *Paystack) Refund(ctx context.Context, reference string, amount int64) error {
	payload := map[string]any{
		"transaction": reference,
		"amount":      amount * 100,
	}
	body, err := p.post(ctx, "/refund", payload)
	if err != nil {
		return err
	}

	var result struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return err
	}
	if !result.Status {
		if result.Message == "" {
			result.Message = "refund failed"
		}
		return errors.New(result.Message)
	}
	return nil
}

// VerifyWebhookSignature checks the x-paystack-signature header against an
// HMAC-SHA512 of the raw payload keyed with the secret key.
func (p *Paystack) VerifyWebhookSignature(signature string, payload []byte) bool {
	if signature == "" || p.secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *Paystack) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		p.logger.Error("Paystack request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("paystack returned status %d", resp.StatusCode)
	}
	return body, nil
}

// chargeLimitFields are the field names the provider has been observed to
// use when reporting its maximum single charge.
var chargeLimitFields = []string{"maximum_amount", "max_amount", "maximumAmount", "maxAmount"}

// ExtractChargeLimit scans a failed initialize response body for a
// provider-reported maximum charge, checking the top level and the nested
// data/providerData/meta objects.
func ExtractChargeLimit(body []byte) (int64, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, false
	}

	scopes := []map[string]any{doc}
	for _, key := range []string{"data", "meta"} {
		if nested, ok := doc[key].(map[string]any); ok {
			scopes = append(scopes, nested)
			if inner, ok := nested["providerData"].(map[string]any); ok {
				scopes = append(scopes, inner)
			}
		}
	}

	for _, scope := range scopes {
		for _, field := range chargeLimitFields {
			if v, ok := scope[field]; ok {
				if limit, ok := asInt64(v); ok {
					return limit, true
				}
			}
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
