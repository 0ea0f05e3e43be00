package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	LogFormat     string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	CORSAllowedOrigins string

	// Per-IP rate limiting; disabled when RateLimitRPS is 0.
	RateLimitRPS   float64
	RateLimitBurst int

	// Dialog engine tuning.
	SessionTTL         time.Duration
	SessionSweepEvery  time.Duration
	TranscriptTTL      time.Duration
	RecentTurns        int
	AvailabilityDays   int
	MaxBookableDates   int
	PaymentSuccessRate float64

	// Completion service (optional; templates are used when unset).
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAITimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		SessionTTL:         getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SessionSweepEvery:  getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		TranscriptTTL:      getEnvAsDuration("TRANSCRIPT_TTL", 24*time.Hour),
		RecentTurns:        getEnvAsInt("RECENT_TURNS", 5),
		AvailabilityDays:   getEnvAsInt("AVAILABILITY_DAYS", 14),
		MaxBookableDates:   getEnvAsInt("MAX_BOOKABLE_DATES", 7),
		PaymentSuccessRate: getEnvAsFloat("PAYMENT_SUCCESS_RATE", 0.9),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITimeout: getEnvAsDuration("OPENAI_TIMEOUT", 10*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
