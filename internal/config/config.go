package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort         string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTExpiry          time.Duration
	APIPasswordHash    string
	FirmwareDir        string
	MaxFirmwareSize    int64
	PublicBaseURL      string
	RateLimitPerMinute int
	BuildArtifactPath  string
	WebhookSecret      string
}

func LoadConfig() (*Config, error) {
	expiryStr := getEnv("JWT_EXPIRY", "24h")
	expiry, err := time.ParseDuration(expiryStr)
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}

	maxSize, err := strconv.ParseInt(getEnv("MAX_FIRMWARE_SIZE", "16777216"), 10, 64)
	if err != nil || maxSize <= 0 {
		return nil, errors.New("invalid MAX_FIRMWARE_SIZE")
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid RATE_LIMIT_PER_MINUTE")
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiry:          expiry,
		APIPasswordHash:    os.Getenv("API_PASSWORD_HASH"),
		FirmwareDir:        getEnv("FIRMWARE_DIR", "./firmware"),
		MaxFirmwareSize:    maxSize,
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		RateLimitPerMinute: rateLimit,
		BuildArtifactPath:  getEnv("BUILD_ARTIFACT_PATH", ""),
		WebhookSecret:      getEnv("GITHUB_WEBHOOK_SECRET", ""),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.APIPasswordHash == "" {
		return nil, errors.New("API_PASSWORD_HASH is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
