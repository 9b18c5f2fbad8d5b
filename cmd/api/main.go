package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/restaurant-booking-ai/cmd/mainconfig"
	"github.com/wolfman30/restaurant-booking-ai/internal/api/router"
	"github.com/wolfman30/restaurant-booking-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/worker"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting restaurant booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"restaurant_id", cfg.RestaurantID,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadOptionalAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{AWS: awsCfg}, logger)
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	inline := startInlineWorker(ctx, app, logger)

	srv := newServer(app, cfg, logger)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(inline, logger)
	logger.Info("server stopped")
}

func newServer(app *bootstrap.App, cfg *appconfig.Config, logger *logging.Logger) *http.Server {
	handler := router.New(&router.Config{
		Logger:               logger,
		WhatsApp:             app.Webhook,
		Staff:                app.Staff,
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       promhttp.Handler(),
		Ready:                app.Ready,
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookBurst:         cfg.WebhookBurst,
	})
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// startInlineWorker runs the consumers in-process when the queue is in memory;
// with SQS the worker binary consumes instead.
func startInlineWorker(ctx context.Context, app *bootstrap.App, logger *logging.Logger) *worker.Worker {
	if !app.Config.UseMemoryQueue {
		return nil
	}
	w := worker.New(app.Pipeline, app.Queue, logger.Component("worker"),
		worker.WithWorkerCount(app.Config.WorkerCount),
		worker.WithReceiveWaitSeconds(1),
	)
	w.Start(ctx)
	logger.Info("inline event workers started", "count", app.Config.WorkerCount)
	return w
}

func waitForInlineWorker(w *worker.Worker, logger *logging.Logger) {
	if w == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline event workers stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline event workers shutdown timed out")
	}
}
