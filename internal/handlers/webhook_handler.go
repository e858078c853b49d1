package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/provider"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/service"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

// WebhookHandler feeds provider webhooks into the same verification path
// used by the SDK callback, after checking the payload signature.
type WebhookHandler struct {
	paystack     *provider.Paystack
	orchestrator *service.Orchestrator
}

func NewWebhookHandler(paystack *provider.Paystack, orchestrator *service.Orchestrator) *WebhookHandler {
	return &WebhookHandler{paystack: paystack, orchestrator: orchestrator}
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// HandlePaystack processes Paystack webhook deliveries.
// POST /payments/webhook/paystack
func (h *WebhookHandler) HandlePaystack(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read body"})
		return
	}

	signature := c.GetHeader("x-paystack-signature")
	if !h.paystack.VerifyWebhookSignature(signature, body) {
		telemetry.Logger.Warn("Rejected webhook with bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if event.Event == "charge.success" && event.Data.Reference != "" {
		if err := h.orchestrator.HandleProviderSuccess(c.Request.Context(), event.Data.Reference); err != nil {
			telemetry.Logger.Error("Webhook verification failed",
				zap.String("reference", event.Data.Reference),
				zap.Error(err),
			)
		}
	}

	// Always acknowledge so the provider stops retrying; reconciliation
	// happens through the verification path.
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
