package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort         string
	AppEnv          string
	LogLevel        string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS allowed origins
	TrustProxy      bool     // take the client IP from proxy headers

	RedisURL string

	JWTSecret string
	JWTExpiry time.Duration

	OTP OTPConfig

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	UsersTable     string

	SNSRegion         string
	SNSExpiryTopicARN string // empty disables expiry publishing

	WhatsApp WhatsAppConfig
}

// OTPConfig holds the issuance and verification timings.
type OTPConfig struct {
	TTL             time.Duration
	CooldownWindow  time.Duration
	MaxAttempts     int
	LoginRequestTTL time.Duration
	ExpiryLead      time.Duration
}

// WhatsAppConfig holds the messaging channel settings.
type WhatsAppConfig struct {
	SessionStore  string // "file" or "s3"
	SessionFile   string
	SessionBucket string
	SessionKey    string
	StoreURL      string // PostgreSQL DSN for the device key store
	TypingDelay   time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:         getEnv("APP_PORT", "3000"),
		AppEnv:          getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustProxy:      getEnvBool("TRUST_PROXY", false),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvDuration("JWT_EXPIRY", 12*time.Hour),

		OTP: OTPConfig{
			TTL:             getEnvDuration("OTP_TTL", 5*time.Minute),
			CooldownWindow:  getEnvDuration("OTP_COOLDOWN_WINDOW", 5*time.Minute),
			MaxAttempts:     getEnvInt("OTP_MAX_ATTEMPTS", 3),
			LoginRequestTTL: getEnvDuration("LOGIN_REQUEST_TTL", 5*time.Minute),
			ExpiryLead:      getEnvDuration("OTP_EXPIRY_LEAD", time.Second),
		},

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		UsersTable:     getEnv("DYNAMO_TABLE_USERS", "users"),

		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSExpiryTopicARN: getEnv("SNS_EXPIRY_TOPIC_ARN", ""),

		WhatsApp: WhatsAppConfig{
			SessionStore:  getEnv("SESSION_STORE", "file"),
			SessionFile:   getEnv("WHATSAPP_SESSION_FILE", "./auth_info/session.json"),
			SessionBucket: getEnv("WHATSAPP_SESSION_BUCKET", ""),
			SessionKey:    getEnv("WHATSAPP_SESSION_KEY", "whatsapp/session.json"),
			StoreURL:      getEnv("WHATSAPP_STORE_URL", "postgres://localhost:5432/whatsapp?sslmode=disable"),
			TypingDelay:   getEnvDuration("WHATSAPP_TYPING_DELAY", 1500*time.Millisecond),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
