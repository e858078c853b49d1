package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/service"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

type EscrowHandler struct {
	escrow *service.EscrowService
}

func NewEscrowHandler(escrow *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// CreateTransaction opens an escrow transaction. POST /escrow/transactions
func (h *EscrowHandler) CreateTransaction(c *gin.Context) {
	var input service.CreateEscrowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	tx, err := h.escrow.Create(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBuyerRequired),
			errors.Is(err, models.ErrInvalidAmount),
			errors.Is(err, models.ErrItemRequired),
			errors.Is(err, models.ErrSelfPurchase):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, models.ErrEscrowConflict):
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		default:
			telemetry.Logger.Error("Failed to create escrow transaction", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to create escrow transaction"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "id": tx.ID, "data": tx})
}

// GetTransaction fetches one escrow transaction. GET /escrow/transactions/:id
func (h *EscrowHandler) GetTransaction(c *gin.Context) {
	tx, err := h.escrow.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrEscrowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		telemetry.Logger.Error("Failed to fetch escrow transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to fetch escrow transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": tx})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectTransaction rejects a pending or funded escrow, refunding the
// buyer when money was already collected.
// POST /escrow/transactions/:id/reject
func (h *EscrowHandler) RejectTransaction(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
			return
		}
	}

	tx, err := h.escrow.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEscrowNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		case errors.Is(err, models.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		default:
			telemetry.Logger.Error("Failed to reject escrow transaction", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to reject escrow transaction"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": tx})
}

// ListTransactions lists escrow transactions with optional buyer/seller
// and status filters. GET /escrow/transactions
func (h *EscrowHandler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	filter := models.EscrowFilter{
		BuyerID:  c.Query("buyerId"),
		SellerID: c.Query("sellerId"),
		Status:   models.EscrowStatus(c.Query("status")),
		Page:     page,
		Limit:    limit,
	}

	transactions, total, err := h.escrow.List(c.Request.Context(), filter)
	if err != nil {
		telemetry.Logger.Error("Failed to list escrow transactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list escrow transactions"})
		return
	}
	if transactions == nil {
		transactions = []models.EscrowTransaction{}
	}

	totalPages := total / int64(filter.Limit)
	if total%int64(filter.Limit) != 0 || totalPages == 0 {
		totalPages++
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    transactions,
		"pagination": gin.H{
			"currentPage":  filter.Page,
			"itemsPerPage": filter.Limit,
			"totalItems":   total,
			"totalPages":   totalPages,
		},
	})
}
