package config

import (
	"os"
	"time"
)

type Config struct {
	DatabaseURL        string
	RedisURL           string
	NatsURL            string
	KafkaBrokers       string
	BadgerPath         string
	PendingTTL         time.Duration
	PaymentProvider    string // paystack | stub
	PaystackSecretKey  string
	PaystackBaseURL    string
	PaymentCallbackURL string
	Currency           string
	Port               string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	providerName := os.Getenv("PAYMENT_PROVIDER")
	if providerName == "" {
		providerName = "paystack"
	}

	badgerPath := os.Getenv("BADGER_PATH")
	if badgerPath == "" {
		badgerPath = "./data/pending"
	}

	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "NGN"
	}

	pendingTTL := 24 * time.Hour
	if raw := os.Getenv("PENDING_PAYMENT_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			pendingTTL = d
		}
	}

	return &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		NatsURL:            os.Getenv("NATS_URL"),
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		BadgerPath:         badgerPath,
		PendingTTL:         pendingTTL,
		PaymentProvider:    providerName,
		PaystackSecretKey:  os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:    os.Getenv("PAYSTACK_BASE_URL"),
		PaymentCallbackURL: os.Getenv("PAYMENT_CALLBACK_URL"),
		Currency:           currency,
		Port:               port,
	}
}
