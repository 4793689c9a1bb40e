package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	IsProduction      bool
	ProdOrigins       string
	HTTPAddr          string
	DBDSN             string
	DBMaxConns        int32
	JWTSecret         string
	JWTAccessTokenTTL time.Duration
	WebhookSecret     string

	RedisAddr      string // empty disables idempotency keys
	IdempotencyTTL time.Duration
	KafkaBrokers   []string // empty selects the log publisher
	KafkaTopic     string

	DefaultOpen        timerange.Clock
	DefaultClose       timerange.Clock
	SlotMinutes        int
	MinDurationMinutes int
	MaxDurationMinutes int

	PaymentPendingTTL time.Duration
	ExpiryInterval    time.Duration
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")
	cfg.IsProduction = getEnv("APP_ENV", "dev") == PROD_STRING
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Database DSN is required
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}
	maxConns, err := getEnvAsInt("DB_MAX_CONNS", 0)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(maxConns)

	// JWT secret is required to verify tokens from the identity provider
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTAccessTokenTTL, err = getEnvAsPositiveDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}

	// Shared secret the payment provider presents on webhook calls
	cfg.WebhookSecret = os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required")
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	if cfg.IdempotencyTTL, err = getEnvAsPositiveDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	cfg.KafkaBrokers = splitCSV(getEnv("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "reservation.transitions")

	// Scheduling policy
	if cfg.DefaultOpen, err = getEnvAsClock("DEFAULT_OPEN", "08:00"); err != nil {
		return nil, err
	}
	if cfg.DefaultClose, err = getEnvAsClock("DEFAULT_CLOSE", "20:00"); err != nil {
		return nil, err
	}
	if cfg.DefaultOpen > cfg.DefaultClose {
		return nil, fmt.Errorf("DEFAULT_OPEN must not be after DEFAULT_CLOSE")
	}
	if cfg.SlotMinutes, err = getEnvAsInt("SLOT_MINUTES", 30); err != nil {
		return nil, err
	}
	if cfg.SlotMinutes < 1 {
		return nil, fmt.Errorf("SLOT_MINUTES must be positive")
	}
	if cfg.MinDurationMinutes, err = getEnvAsInt("MIN_DURATION_MINUTES", 30); err != nil {
		return nil, err
	}
	if cfg.MaxDurationMinutes, err = getEnvAsInt("MAX_DURATION_MINUTES", 12*60); err != nil {
		return nil, err
	}
	if cfg.MinDurationMinutes < 0 || cfg.MaxDurationMinutes < 0 {
		return nil, fmt.Errorf("MIN_DURATION_MINUTES and MAX_DURATION_MINUTES must not be negative")
	}
	if cfg.MaxDurationMinutes > 0 && cfg.MinDurationMinutes > cfg.MaxDurationMinutes {
		return nil, fmt.Errorf("MIN_DURATION_MINUTES must not exceed MAX_DURATION_MINUTES")
	}

	if cfg.PaymentPendingTTL, err = getEnvAsPositiveDuration("PAYMENT_PENDING_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ExpiryInterval, err = getEnvAsPositiveDuration("EXPIRY_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns an error if the variable is set but is not a valid integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

// getEnvAsDuration parses values such as "15m" or "24h".
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid duration: %w", key, valStr, err)
	}
	return val, nil
}

// getEnvAsPositiveDuration is getEnvAsDuration for values that must be > 0,
// such as ticker intervals and TTLs.
func getEnvAsPositiveDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	val, err := getEnvAsDuration(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if val <= 0 {
		return 0, fmt.Errorf("env %s must be a positive duration, got %s", key, val)
	}
	return val, nil
}

func getEnvAsClock(key, defaultValue string) (timerange.Clock, error) {
	valStr := getEnv(key, defaultValue)
	c, err := timerange.ParseClock(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q: %w", key, valStr, err)
	}
	return c, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
