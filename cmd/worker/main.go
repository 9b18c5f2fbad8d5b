package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/restaurant-booking-ai/cmd/mainconfig"
	"github.com/wolfman30/restaurant-booking-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("the event worker consumes SQS; set USE_MEMORY_QUEUE=false and EVENT_QUEUE_URL")
		os.Exit(1)
	}
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

	w := app.NewWorker(logger.Component("worker"))
	w.Start(ctx)
	logger.Info("event worker started", "count", cfg.WorkerCount, "queue", cfg.EventQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down event worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		w.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("event worker stopped")
	case <-doneCtx.Done():
		logger.Error("event worker shutdown timed out", "error", doneCtx.Err())
	}
}
