package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Verification authority
	AuthorityBaseURL string
	AuthorityAPIKey  string
	AuthorityTimeout time.Duration

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Check-in guard
	ClaimTTL time.Duration

	// Sync configuration
	SyncInterval time.Duration
	SyncPageSize int

	// Rate limiting
	MutationRateLimit  int
	MutationRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Authority
		AuthorityBaseURL: getEnv("AUTHORITY_BASE_URL", "http://localhost:8080"),
		AuthorityAPIKey:  getEnv("AUTHORITY_API_KEY", ""),
		AuthorityTimeout: getEnvAsDuration("AUTHORITY_TIMEOUT", "10s"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Check-in guard
		ClaimTTL: getEnvAsDuration("CHECKIN_CLAIM_TTL", "15s"),

		// Sync
		SyncInterval: getEnvAsDuration("SYNC_INTERVAL", "20s"),
		SyncPageSize: getEnvAsInt("SYNC_PAGE_SIZE", 50),

		// Rate limiting
		MutationRateLimit:  getEnvAsInt("MUTATION_RATE_LIMIT", 30),
		MutationRateWindow: getEnvAsDuration("MUTATION_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
