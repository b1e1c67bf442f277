package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OpenAI
	OpenAIAPIKey  string
	LLMModel      string
	LLMMaxTokens  int
	LLMTimeoutSec int

	// Classification
	ConfidenceThreshold float64

	// Sync
	SyncPageSize     int64
	SyncMaxMessages  int
	FetchConcurrency int
	SyncQuery        string

	// Dedup cache
	DedupCacheTTL time.Duration

	// Token encryption
	TokenEncryptionKey string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8000/api/v1/oauth/callback/google"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:  getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 60),

		ConfidenceThreshold: getEnvFloat("LLM_CONFIDENCE_THRESHOLD", 0.7),

		SyncPageSize:     int64(getEnvInt("SYNC_PAGE_SIZE", 100)),
		SyncMaxMessages:  getEnvInt("SYNC_MAX_MESSAGES", 500),
		FetchConcurrency: getEnvInt("SYNC_FETCH_CONCURRENCY", 10),
		SyncQuery:        getEnv("SYNC_QUERY", ""),

		DedupCacheTTL: time.Duration(getEnvInt("DEDUP_CACHE_TTL_HOUR", 24)) * time.Hour,

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
