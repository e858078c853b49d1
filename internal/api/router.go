package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/handlers"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

func NewRouter(
	escrowHandler *handlers.EscrowHandler,
	paymentHandler *handlers.PaymentHandler,
	sessionHandler *handlers.SessionHandler,
	webhookHandler *handlers.WebhookHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "escrow-payments"})
	})

	// Escrow transactions
	r.POST("/escrow/transactions", escrowHandler.CreateTransaction)
	r.GET("/escrow/transactions", escrowHandler.ListTransactions)
	r.GET("/escrow/transactions/:id", escrowHandler.GetTransaction)
	r.POST("/escrow/transactions/:id/reject", escrowHandler.RejectTransaction)

	// Payments
	r.POST("/payments/initialize", paymentHandler.InitializePayment)
	r.POST("/payments/:id/verify", paymentHandler.VerifyPayment)
	r.GET("/payments/pending", paymentHandler.PendingPayments)
	if webhookHandler != nil {
		r.POST("/payments/webhook/paystack", webhookHandler.HandlePaystack)
	}

	// Purchase wizard
	r.POST("/purchase/sessions", sessionHandler.Begin)
	r.GET("/purchase/sessions/:id", sessionHandler.Get)
	r.POST("/purchase/sessions/:id/continue", sessionHandler.Continue)
	r.POST("/purchase/sessions/:id/complete", sessionHandler.Complete)
	r.POST("/purchase/sessions/:id/retry", sessionHandler.Retry)
	r.DELETE("/purchase/sessions/:id", sessionHandler.Close)

	return r
}
