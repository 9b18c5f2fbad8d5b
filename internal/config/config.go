package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// Restaurant / booking rules
	RestaurantID         string
	RestaurantTimezone   string
	ServiceType          string
	MaxReservationHours  int
	ClientContext        string
	DedupWindow          time.Duration
	FallbackReply        string
	MutationFailedReply  string
	UnsupportedReply     string

	// Reasoning function
	LLMProvider    string
	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string
	LLMTimeout     time.Duration

	// WhatsApp Cloud API
	WhatsAppToken     string
	PhoneNumberID     string
	VerifyToken       string
	WhatsAppAppSecret string
	GraphAPIBase      string

	// Rate limiting
	WebhookRatePerSecond float64
	WebhookBurst         int
	RateLimitMax         int
	RateLimitWindow  time.Duration
	RateLimitBackend     string
	RateLimitTable       string

	// Timeouts for external calls
	StoreTimeout    time.Duration
	SendTimeout     time.Duration
	MutationTimeout time.Duration
	NotifyTimeout   time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventQueueURL       string
	MediaBucket         string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Staff notifications
	FCMProjectID       string
	FCMCredentialsFile string
	StaffTokenTTL      time.Duration
	StaffEmails        []string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string

	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RestaurantID:         getEnv("RESTAURANT_ID", ""),
		RestaurantTimezone:   getEnv("RESTAURANT_TIMEZONE", "Asia/Kuala_Lumpur"),
		ServiceType:          getEnv("SERVICE_TYPE", "Dining"),
		MaxReservationHours:  getEnvAsInt("MAX_RESERVATION_TIME_HR", 2),
		ClientContext:        getEnv("CLIENT_CONTEXT", ""),
		DedupWindow:          getEnvAsDuration("DEDUP_WINDOW", 10*time.Second),
		FallbackReply:        getEnv("FALLBACK_REPLY", ""),
		MutationFailedReply:  getEnv("MUTATION_FAILED_REPLY", ""),
		UnsupportedReply:     getEnv("UNSUPPORTED_REPLY", ""),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash-lite"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),

		WhatsAppToken:     getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:     getEnv("PHONE_NUMBER_ID", ""),
		VerifyToken:       getEnv("VERIFY_TOKEN", ""),
		WhatsAppAppSecret: getEnv("WHATSAPP_APP_SECRET", ""),
		GraphAPIBase:      getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v17.0"),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 50),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 100),
		RateLimitMax:         getEnvAsInt("RATE_LIMIT_MAX", 3),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBackend: strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_BACKEND", "memory"))),
		RateLimitTable:   getEnv("RATE_LIMIT_TABLE", "rate_windows"),

		StoreTimeout:    getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		SendTimeout:     getEnvAsDuration("SEND_TIMEOUT", 10*time.Second),
		MutationTimeout: getEnvAsDuration("MUTATION_TIMEOUT", 10*time.Second),
		NotifyTimeout:   getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventQueueURL:       getEnv("EVENT_QUEUE_URL", ""),
		MediaBucket:         getEnv("MEDIA_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		FCMProjectID:       getEnv("FCM_PROJECT_ID", ""),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
		StaffTokenTTL:      getEnvAsDuration("STAFF_TOKEN_TTL", 5*time.Minute),
		StaffEmails:        getEnvAsList("STAFF_EMAILS"),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Reservations"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// MaxReservation returns the configured maximum reservation length.
func (c *Config) MaxReservation() time.Duration {
	if c == nil || c.MaxReservationHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.MaxReservationHours) * time.Hour
}

// Validate reports missing or inconsistent settings needed to serve traffic.
// Development runs are allowed to omit the external credentials.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RestaurantID) == "" {
		errs = append(errs, errors.New("RESTAURANT_ID is required"))
	}
	if _, err := time.LoadLocation(c.RestaurantTimezone); err != nil {
		errs = append(errs, fmt.Errorf("RESTAURANT_TIMEZONE %q: %w", c.RestaurantTimezone, err))
	}
	switch c.LLMProvider {
	case "gemini", "bedrock":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q must be gemini or bedrock", c.LLMProvider))
	}
	switch c.RateLimitBackend {
	case "memory", "redis", "dynamodb":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q must be memory, redis or dynamodb", c.RateLimitBackend))
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.Env == "production" {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if c.WhatsAppToken == "" || c.PhoneNumberID == "" {
			errs = append(errs, errors.New("WHATSAPP_TOKEN and PHONE_NUMBER_ID are required in production"))
		}
		if c.WhatsAppAppSecret == "" {
			errs = append(errs, errors.New("WHATSAPP_APP_SECRET is required in production"))
		}
		if !c.UseMemoryQueue && c.EventQueueURL == "" {
			errs = append(errs, errors.New("EVENT_QUEUE_URL is required when USE_MEMORY_QUEUE=false"))
		}
	}
	return errors.Join(errs...)
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
