package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("RATE_LIMIT_WINDOW", "")
	t.Setenv("DEDUP_WINDOW", "")
	t.Setenv("MAX_RESERVATION_TIME_HR", "")
	t.Setenv("STAFF_EMAILS", "")
	cfg := Load()
	if cfg.Port != "3000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RateLimitMax != 3 {
		t.Fatalf("expected default rate limit of 3, got %d", cfg.RateLimitMax)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("expected default rate window of 1m, got %s", cfg.RateLimitWindow)
	}
	if cfg.DedupWindow != 10*time.Second {
		t.Fatalf("expected default dedup window of 10s, got %s", cfg.DedupWindow)
	}
	if cfg.MaxReservation() != 2*time.Hour {
		t.Fatalf("expected default max reservation of 2h, got %s", cfg.MaxReservation())
	}
	if cfg.StaffEmails != nil {
		t.Fatalf("expected no staff emails, got %v", cfg.StaffEmails)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("RESTAURANT_ID", "rest-1")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_BACKEND", " Redis ")
	t.Setenv("MAX_RESERVATION_TIME_HR", "3")
	t.Setenv("STAFF_EMAILS", "a@example.com, ,b@example.com")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.RestaurantID != "rest-1" {
		t.Fatalf("expected restaurant override, got %s", cfg.RestaurantID)
	}
	if cfg.RateLimitMax != 5 || cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("expected rate limit override, got %d per %s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.RateLimitBackend != "redis" {
		t.Fatalf("expected normalized backend, got %q", cfg.RateLimitBackend)
	}
	if cfg.MaxReservation() != 3*time.Hour {
		t.Fatalf("expected max reservation override, got %s", cfg.MaxReservation())
	}
	if len(cfg.StaffEmails) != 2 || cfg.StaffEmails[1] != "b@example.com" {
		t.Fatalf("expected two staff emails, got %v", cfg.StaffEmails)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("LLM_TIMEOUT", "soon")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected fallback worker count, got %d", cfg.WorkerCount)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("expected fallback llm timeout, got %s", cfg.LLMTimeout)
	}
}

func TestLoadProviderAndReplies(t *testing.T) {
	t.Setenv("LLM_PROVIDER", " Bedrock ")
	t.Setenv("UNSUPPORTED_REPLY", "Sorry, I can only read text and photos.")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "2.5")
	cfg := Load()
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.UnsupportedReply != "Sorry, I can only read text and photos." {
		t.Fatalf("unexpected unsupported reply %q", cfg.UnsupportedReply)
	}
	if cfg.WebhookRatePerSecond != 2.5 {
		t.Fatalf("expected webhook rate override, got %v", cfg.WebhookRatePerSecond)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("RESTAURANT_ID", "rest-1")
	t.Setenv("ENV", "development")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("RATE_LIMIT_BACKEND", "")
	t.Setenv("RESTAURANT_TIMEZONE", "")
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected development config to validate, got %v", err)
	}

	cfg.Env = "production"
	cfg.LLMProvider = "openai"
	cfg.RestaurantTimezone = "Mars/Olympus"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"LLM_PROVIDER", "RESTAURANT_TIMEZONE", "DATABASE_URL", "WHATSAPP_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}
