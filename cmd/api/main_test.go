package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/restaurant-booking-ai/cmd/mainconfig"
	"github.com/wolfman30/restaurant-booking-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/conversation"
	"github.com/wolfman30/restaurant-booking-ai/internal/store"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

type silentLLM struct{}

func (silentLLM) Complete(context.Context, conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: `{"action":"request_booking_info","message":"ok"}`}, nil
}

func buildTestApp(t *testing.T, memoryQueue bool) (*bootstrap.App, *appconfig.Config) {
	t.Helper()
	cfg := &appconfig.Config{
		Port:             "0",
		RestaurantID:     "r1",
		UseMemoryQueue:   memoryQueue,
		EventQueueURL:    "http://localhost:4566/000000000000/events",
		WorkerCount:      1,
		RateLimitBackend: "memory",
		RateLimitMax:     3,
		RateLimitWindow:  time.Minute,
		AdminJWTSecret:   "secret",
	}
	opts := bootstrap.Options{
		Store:      store.NewMemoryStore(),
		LLM:        silentLLM{},
		Registerer: prometheus.NewRegistry(),
	}
	if !memoryQueue {
		t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
		cfg.AWSRegion = "us-east-1"
		cfg.AWSAccessKeyID = "test"
		cfg.AWSSecretAccessKey = "test"
		awsCfg, err := mainconfigLoad(cfg)
		if err != nil {
			t.Fatalf("aws config: %v", err)
		}
		opts.AWS = awsCfg
	}
	app, err := bootstrap.Build(context.Background(), cfg, opts, logging.Discard())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(app.Close)
	return app, cfg
}

func TestNewServerServesHealth(t *testing.T) {
	app, cfg := buildTestApp(t, true)
	srv := newServer(app, cfg, logging.Discard())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if srv.Addr != ":0" {
		t.Fatalf("unexpected addr %q", srv.Addr)
	}
}

func TestInlineWorkerDisabledForSQS(t *testing.T) {
	app, _ := buildTestApp(t, false)
	if w := startInlineWorker(context.Background(), app, logging.Discard()); w != nil {
		t.Fatalf("expected no inline worker when events go to SQS")
	}
}

func TestInlineWorkerStartsAndStops(t *testing.T) {
	app, _ := buildTestApp(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	w := startInlineWorker(ctx, app, logging.Discard())
	if w == nil {
		t.Fatalf("expected inline worker with the memory queue")
	}
	cancel()
	waitForInlineWorker(w, logging.Discard())
}

func mainconfigLoad(cfg *appconfig.Config) (*aws.Config, error) {
	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &awsCfg, nil
}
