package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Gateway holds the payment-provider credentials and limits. They are read
// once at startup and injected into the payment service and webhook handler;
// nothing looks them up from the environment at call time.
type Gateway struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type Config struct {
	HTTPAddr    string
	DatabaseURL string

	JWTSecret string
	JWTTTL    time.Duration

	Currency string
	// PendingHoldTTL bounds how long a PENDING reservation without a payment
	// session keeps its calendar slot.
	PendingHoldTTL time.Duration
	SweepInterval  time.Duration

	Gateway Gateway

	KafkaBrokers []string
	KafkaTopic   string
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTTTL:         getduration("JWT_TTL", 24*time.Hour),
		Currency:       getenv("CURRENCY", "USD"),
		PendingHoldTTL: getduration("PENDING_HOLD_TTL", 15*time.Minute),
		SweepInterval:  getduration("SWEEP_INTERVAL", time.Minute),
		Gateway: Gateway{
			BaseURL:       getenv("GATEWAY_BASE_URL", "https://api.stripe.com/v1"),
			SecretKey:     os.Getenv("GATEWAY_SECRET_KEY"),
			WebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
			Timeout:       getduration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "autorent.reservations"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is empty")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is empty")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
