package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/models"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/provider"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/service"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

// SessionHandler exposes the purchase wizard over HTTP.
type SessionHandler struct {
	orchestrator *service.Orchestrator
}

func NewSessionHandler(orchestrator *service.Orchestrator) *SessionHandler {
	return &SessionHandler{orchestrator: orchestrator}
}

// Begin opens a purchase session, resuming a stored attempt when one
// exists. POST /purchase/sessions
func (h *SessionHandler) Begin(c *gin.Context) {
	var input service.BeginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	session, err := h.orchestrator.Begin(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBuyerRequired),
			errors.Is(err, models.ErrInvalidAmount),
			errors.Is(err, models.ErrItemRequired):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		default:
			// One-click initialization failed; the session still exists
			// with its failure state, so return it alongside the error.
			h.respondFlowError(c, session, err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": session})
}

// Get returns the wizard state. GET /purchase/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.orchestrator.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session, "step": session.State.Step()})
}

// Continue advances review -> payment. POST /purchase/sessions/:id/continue
func (h *SessionHandler) Continue(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.orchestrator.ContinueToPayment(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		if errors.Is(err, models.ErrLaunchInFlight) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
			return
		}
		session, _ := h.orchestrator.Session(sessionID)
		h.respondFlowError(c, session, err)
		return
	}

	session, err := h.orchestrator.Session(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session, "step": session.State.Step()})
}

type completeRequest struct {
	Reference string `json:"reference"`
}

// Complete is the provider SDK success callback surface.
// POST /purchase/sessions/:id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "reference is required"})
		return
	}

	if err := h.orchestrator.HandleProviderSuccess(c.Request.Context(), req.Reference); err != nil {
		telemetry.Logger.Error("Checkout completion failed",
			zap.String("reference", req.Reference),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to verify payment"})
		return
	}

	session, err := h.orchestrator.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session, "step": session.State.Step()})
}

// Retry re-arms a failed session. POST /purchase/sessions/:id/retry
func (h *SessionHandler) Retry(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.orchestrator.Retry(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		session, _ := h.orchestrator.Session(sessionID)
		h.respondFlowError(c, session, err)
		return
	}
	session, _ := h.orchestrator.Session(sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
}

// Close abandons the wizard without touching the escrow or the pending
// record. DELETE /purchase/sessions/:id
func (h *SessionHandler) Close(c *gin.Context) {
	h.orchestrator.Close(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *SessionHandler) respondFlowError(c *gin.Context, session *service.Session, err error) {
	var limitErr *provider.ChargeLimitError
	status := http.StatusBadGateway
	message := err.Error()
	body := gin.H{"success": false, "error": message}

	switch {
	case errors.As(err, &limitErr):
		status = http.StatusUnprocessableEntity
		body["data"] = gin.H{"maximumAmount": limitErr.Limit}
	case errors.Is(err, models.ErrEscrowConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrSelfPurchase), errors.Is(err, models.ErrUnsupportedMethod):
		status = http.StatusBadRequest
	}

	if session != nil {
		body["session"] = session
	}
	c.JSON(status, body)
}
