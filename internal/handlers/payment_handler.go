package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/provider"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/service"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
	verifier     *service.VerificationService
	store        interfaces.PendingStore
}

func NewPaymentHandler(orchestrator *service.Orchestrator, verifier *service.VerificationService, store interfaces.PendingStore) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		verifier:     verifier,
		store:        store,
	}
}

type initializeRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"paymentMethod"`
	PaymentType   string `json:"paymentType"`
	RelatedEntity struct {
		Type     string         `json:"type"`
		ID       string         `json:"id"`
		Metadata map[string]any `json:"metadata"`
	} `json:"relatedEntity"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
}

// InitializePayment opens a provider checkout for an existing escrow
// transaction. POST /payments/initialize
func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if req.PaymentType != "escrow" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unsupported payment type"})
		return
	}

	attempt, err := h.orchestrator.InitializePayment(c.Request.Context(), service.InitializeInput{
		EscrowID: req.RelatedEntity.ID,
		Amount:   req.Amount,
		Email:    req.Email,
		Method:   models.PaymentMethod(req.PaymentMethod),
		Metadata: req.RelatedEntity.Metadata,
	})
	if err != nil {
		var limitErr *provider.ChargeLimitError
		switch {
		case errors.As(err, &limitErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   limitErr.Error(),
				"data":    gin.H{"maximumAmount": limitErr.Limit},
			})
		case errors.Is(err, models.ErrEscrowNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrUnsupportedMethod):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		default:
			telemetry.Logger.Error("Payment initialization failed",
				zap.String("escrow_id", req.RelatedEntity.ID),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to initialize payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"payment": gin.H{
				"id":        attempt.PaymentID,
				"reference": attempt.TxRef,
			},
			"providerData": gin.H{
				"txRef":            attempt.TxRef,
				"authorizationUrl": attempt.CheckoutURL,
			},
		},
	})
}

type verifyRequest struct {
	ProviderReference string `json:"providerReference"`
	TxRef             string `json:"txRef"`
	EscrowID          string `json:"escrowId"`
	Status            string `json:"status"`
}

// VerifyPayment confirms whether a provider reference has settled.
// POST /payments/:id/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	paymentID := c.Param("id")

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	// The reference the provider reported wins over the client's txRef.
	reference := req.ProviderReference
	if reference == "" {
		reference = req.TxRef
	}
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "providerReference or txRef is required"})
		return
	}

	escrowID := req.EscrowID
	if escrowID == "" {
		for _, entry := range h.store.Entries() {
			if entry.PaymentID == paymentID {
				escrowID = entry.EscrowID
				break
			}
		}
	}
	if escrowID == "" {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no pending payment for this id"})
		return
	}

	status, err := h.verifier.Verify(c.Request.Context(), escrowID, paymentID, reference)
	if err != nil {
		telemetry.Logger.Error("Payment verification failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to verify payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"status": status},
	})
}

// PendingPayments lists stored in-flight attempts. GET /payments/pending
func (h *PaymentHandler) PendingPayments(c *gin.Context) {
	entries := h.store.Entries()
	if entries == nil {
		entries = []models.PendingPayment{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}
