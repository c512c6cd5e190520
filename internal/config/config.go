package config

import (
	"os"
	"strings"
	"time"
)

type AppConfig struct {
	// Server
	HTTPAddr string
	AppEnv   string

	// Storage
	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	// M-Pesa gateway
	Mpesa MpesaConfig

	// Ops API
	OpsJWTSecret string

	// Events
	KafkaBrokers []string
	KafkaTopic   string
}

type MpesaConfig struct {
	Env            string // sandbox | production
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	CallbackSecret string
	AccountRef     string
	Timeout        time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		AppEnv:   strings.ToLower(getEnv("APP_ENV", "development")),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASS", ""),

		Mpesa: MpesaConfig{
			Env:            strings.ToLower(getEnv("MPESA_ENV", "sandbox")),
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			Shortcode:      getEnv("MPESA_SHORTCODE", ""),
			Passkey:        getEnv("MPESA_PASSKEY", ""),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
			CallbackSecret: getEnv("MPESA_CALLBACK_SECRET", ""),
			AccountRef:     getEnv("MPESA_ACCOUNT_REF", "SOKOPAY"),
			Timeout:        getEnvDuration("MPESA_TIMEOUT", 15*time.Second),
		},

		OpsJWTSecret: getEnv("OPS_JWT_SECRET", ""),

		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "payments.status"),
	}
}

// IsProduction reports whether the service runs under a production
// environment classification. It gates the https-only callback check.
func (c AppConfig) IsProduction() bool {
	return c.AppEnv == "production"
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
