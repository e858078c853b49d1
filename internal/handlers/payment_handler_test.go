package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/provider"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/repository"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/service"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	telemetry.Logger = zap.NewNop()
	os.Exit(m.Run())
}

// memRepo is the minimal in-memory EscrowRepository the handler tests need.
type memRepo struct {
	mu  sync.Mutex
	txs map[string]*models.EscrowTransaction
}

func (r *memRepo) Create(_ context.Context, tx *models.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *tx
	r.txs[tx.ID] = &copied
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *tx
	return &copied, nil
}

func (r *memRepo) FindActiveByProperty(_ context.Context, propertyID string) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.PropertyID == propertyID && tx.Status == models.EscrowPending {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memRepo) List(_ context.Context, _ models.EscrowFilter) ([]models.EscrowTransaction, int64, error) {
	return nil, 0, nil
}

func (r *memRepo) TransitionStatus(_ context.Context, id string, from, to models.EscrowStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.Status != from {
		return 0, nil
	}
	tx.Status = to
	return 1, nil
}

func (r *memRepo) MarkFunded(_ context.Context, id string, method models.PaymentMethod, reference string, paidAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.Status != models.EscrowPending {
		return 0, nil
	}
	tx.Status = models.EscrowPaymentReceived
	tx.PaymentMethod = method
	tx.PaymentReference = reference
	tx.PaidAt = &paidAt
	return 1, nil
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (noopLocker) Release(context.Context, string) error                        { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

// limitProvider refuses every initialization with a charge limit.
type limitProvider struct {
	limit int64
}

func (p *limitProvider) Initialize(context.Context, interfaces.InitializeRequest) (*interfaces.InitializeResult, error) {
	return nil, &provider.ChargeLimitError{Limit: p.limit}
}

func (p *limitProvider) Verify(context.Context, string) (*interfaces.VerifyResult, error) {
	return nil, nil
}

func (p *limitProvider) Refund(context.Context, string, int64) error { return nil }

type fixture struct {
	repo   *memRepo
	store  *repository.PendingStore
	stub   *provider.Stub
	escrow *service.EscrowService
	orc    *service.Orchestrator
	router *gin.Engine
}

func newFixture(t *testing.T, p interfaces.PaymentProvider) *fixture {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &memRepo{txs: make(map[string]*models.EscrowTransaction)}
	store := repository.NewPendingStore(db, time.Hour, zap.NewNop())
	escrow := service.NewEscrowService(repo, noopPublisher{}, p, "NGN")
	verifier := service.NewVerificationService(escrow, store, p, noopLocker{}, noopPublisher{})
	orc := service.NewOrchestrator(escrow, verifier, store, p, noopPublisher{})

	paymentHandler := NewPaymentHandler(orc, verifier, store)

	router := gin.New()
	router.POST("/payments/initialize", paymentHandler.InitializePayment)
	router.POST("/payments/:id/verify", paymentHandler.VerifyPayment)
	router.GET("/payments/pending", paymentHandler.PendingPayments)

	f := &fixture{repo: repo, store: store, escrow: escrow, orc: orc, router: router}
	if stub, ok := p.(*provider.Stub); ok {
		f.stub = stub
	}
	return f
}

func (f *fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) createEscrow(t *testing.T) *models.EscrowTransaction {
	t.Helper()
	tx, err := f.escrow.Create(context.Background(), service.CreateEscrowInput{
		PropertyID: "prop-1", BuyerID: "buyer-1", Amount: 100_000,
	})
	require.NoError(t, err)
	return tx
}

func TestInitializePaymentResponseShape(t *testing.T) {
	f := newFixture(t, provider.NewStub())
	tx := f.createEscrow(t)

	w := f.post(t, "/payments/initialize", gin.H{
		"amount":        tx.TotalAmount,
		"paymentMethod": "paystack",
		"paymentType":   "escrow",
		"relatedEntity": gin.H{"type": "property", "id": tx.ID},
		"email":         "buyer@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Payment struct {
				ID        string `json:"id"`
				Reference string `json:"reference"`
			} `json:"payment"`
			ProviderData struct {
				TxRef            string `json:"txRef"`
				AuthorizationURL string `json:"authorizationUrl"`
			} `json:"providerData"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Data.Payment.ID, "PAY-")
	assert.Equal(t, resp.Data.Payment.Reference, resp.Data.ProviderData.TxRef)
	assert.NotEmpty(t, resp.Data.ProviderData.AuthorizationURL)
}

func TestInitializePaymentChargeLimitReturns422(t *testing.T) {
	f := newFixture(t, &limitProvider{limit: 500_000})
	tx := f.createEscrow(t)

	w := f.post(t, "/payments/initialize", gin.H{
		"amount":        tx.TotalAmount,
		"paymentType":   "escrow",
		"relatedEntity": gin.H{"type": "property", "id": tx.ID},
		"email":         "buyer@example.com",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			MaximumAmount int64 `json:"maximumAmount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, int64(500_000), resp.Data.MaximumAmount)
}

func TestInitializePaymentUnknownEscrowReturns404(t *testing.T) {
	f := newFixture(t, provider.NewStub())

	w := f.post(t, "/payments/initialize", gin.H{
		"amount":        1000,
		"paymentType":   "escrow",
		"relatedEntity": gin.H{"type": "property", "id": "ESC-missing"},
		"email":         "buyer@example.com",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitializePaymentRejectsNonEscrowType(t *testing.T) {
	f := newFixture(t, provider.NewStub())

	w := f.post(t, "/payments/initialize", gin.H{
		"amount":      1000,
		"paymentType": "direct",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyPaymentResolvesEscrowFromStore(t *testing.T) {
	f := newFixture(t, provider.NewStub())
	tx := f.createEscrow(t)

	attempt, err := f.orc.InitializePayment(context.Background(), service.InitializeInput{
		EscrowID: tx.ID, Amount: tx.TotalAmount, Email: "buyer@example.com",
	})
	require.NoError(t, err)
	f.stub.Settle(attempt.TxRef)

	// No escrowId in the body; the handler resolves it from the stored
	// pending attempt.
	w := f.post(t, "/payments/"+attempt.PaymentID+"/verify", gin.H{
		"providerReference": attempt.TxRef,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status models.PaymentStatus `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.PaymentCompleted, resp.Data.Status)

	got, err := f.escrow.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowPaymentReceived, got.Status)
}

func TestVerifyPaymentUnknownAttemptReturns404(t *testing.T) {
	f := newFixture(t, provider.NewStub())

	w := f.post(t, "/payments/PAY-unknown/verify", gin.H{"txRef": "REF-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaystackWebhookSignature(t *testing.T) {
	f := newFixture(t, provider.NewStub())
	secret := "sk_test_secret"
	paystack := provider.NewPaystack(secret, "", zap.NewNop())
	webhook := NewWebhookHandler(paystack, f.orc)
	f.router.POST("/payments/webhook/paystack", webhook.HandlePaystack)

	body, _ := json.Marshal(gin.H{
		"event": "charge.success",
		"data":  gin.H{"reference": "REF-unknown", "status": "success"},
	})
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", signature)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/payments/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", "deadbeef")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
