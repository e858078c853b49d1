package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/api"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/config"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/events"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/handlers"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/interfaces"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/provider"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/repository"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/service"
	"github.com/KachiAlex/real-estate-marketplace-sub000/internal/telemetry"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Printf("Warning: no .env file loaded: %v\n", err)
	}

	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("escrow-payments"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Escrow Payments service")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	escrowRepo := repository.NewEscrowRepository(db)
	if err := escrowRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Open the pending-payment store
	badgerDB, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath))
	if err != nil {
		telemetry.Logger.Fatal("Failed to open pending payment store", zap.Error(err))
	}
	defer badgerDB.Close()
	pendingStore := repository.NewPendingStore(badgerDB, cfg.PendingTTL, telemetry.Logger)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	locker := repository.NewRedisLocker(redisClient)

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Kafka publishers
	statePublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, events.TopicStateChanged)
	defer statePublisher.Close()
	notifyPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, events.TopicNotifications)
	defer notifyPublisher.Close()

	// Payment provider
	var paymentProvider interfaces.PaymentProvider
	var paystackClient *provider.Paystack
	switch cfg.PaymentProvider {
	case "stub":
		telemetry.Logger.Warn("Using stub payment provider; checkout flows settle in-process")
		paymentProvider = provider.NewStub()
	default:
		opts := []provider.Option{}
		if cfg.PaystackBaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.PaystackBaseURL))
		}
		paystackClient = provider.NewPaystack(cfg.PaystackSecretKey, cfg.PaymentCallbackURL, telemetry.Logger, opts...)
		paymentProvider = paystackClient
	}

	// Services
	escrowService := service.NewEscrowService(escrowRepo, notifyPublisher, paymentProvider, cfg.Currency)
	verifier := service.NewVerificationService(escrowService, pendingStore, paymentProvider, locker, statePublisher)
	orchestrator := service.NewOrchestrator(escrowService, verifier, pendingStore, paymentProvider, statePublisher)

	// Out-of-band checkout status messages
	sub, err := orchestrator.SubscribeCheckoutStatus(nc)
	if err != nil {
		telemetry.Logger.Fatal("Failed to subscribe to checkout status", zap.Error(err))
	}
	defer sub.Unsubscribe()

	// Handlers and router
	escrowHandler := handlers.NewEscrowHandler(escrowService)
	paymentHandler := handlers.NewPaymentHandler(orchestrator, verifier, pendingStore)
	sessionHandler := handlers.NewSessionHandler(orchestrator)
	var webhookHandler *handlers.WebhookHandler
	if paystackClient != nil {
		webhookHandler = handlers.NewWebhookHandler(paystackClient, orchestrator)
	}

	r := api.NewRouter(escrowHandler, paymentHandler, sessionHandler, webhookHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Escrow Payments service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
