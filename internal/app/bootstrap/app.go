package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/conversation"
	"github.com/wolfman30/restaurant-booking-ai/internal/http/handlers"
	"github.com/wolfman30/restaurant-booking-ai/internal/idempotency"
	"github.com/wolfman30/restaurant-booking-ai/internal/media"
	"github.com/wolfman30/restaurant-booking-ai/internal/notify"
	"github.com/wolfman30/restaurant-booking-ai/internal/observability/metrics"
	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/internal/ratelimit"
	"github.com/wolfman30/restaurant-booking-ai/internal/worker"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Options carry pre-built collaborators. Zero values are built from config.
type Options struct {
	AWS        *aws.Config
	Store      Store
	LLM        conversation.LLMClient
	Sender     pipeline.Sender
	Registerer prometheus.Registerer
}

// App is the fully wired service.
type App struct {
	Config     *appconfig.Config
	Store      Store
	Pipeline   *pipeline.Pipeline
	Dispatcher *pipeline.Dispatcher
	Tokens     *notify.TokenCache
	Metrics    *metrics.PipelineMetrics
	Queue      worker.Queue
	Publisher  *worker.Publisher
	Webhook    *whatsapp.WebhookHandler
	Staff      *handlers.AdminStaffHandler
	Limiter    ratelimit.Limiter

	pool  *pgxpool.Pool
	redis *redis.Client
	llm   conversation.LLMClient
	stop  context.CancelFunc
}

// Build wires the whole service from cfg.
func Build(ctx context.Context, cfg *appconfig.Config, opts Options, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{Config: cfg}

	st := opts.Store
	if st == nil {
		built, pool, err := BuildStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		st, app.pool = built, pool
	}
	app.Store = st

	llm := opts.LLM
	model := cfg.GeminiModelID
	if llm == nil {
		built, m, err := BuildLLMClient(ctx, cfg, opts.AWS, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		llm, model, app.llm = built, m, built
	}

	app.redis = BuildRedisClient(ctx, cfg, logger, true)
	var redisCmd redis.Cmdable
	if app.redis != nil {
		redisCmd = app.redis
	}
	limiter, err := BuildLimiter(cfg, redisCmd, opts.AWS, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Limiter = limiter
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		// The sweep outlives Build's context and stops on Close.
		runCtx, stop := context.WithCancel(context.Background())
		app.stop = stop
		go mem.Run(runCtx)
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	app.Metrics = metrics.NewPipelineMetrics(reg)

	var graph *whatsapp.Client
	sender := opts.Sender
	if sender == nil {
		if cfg.WhatsAppToken != "" && cfg.PhoneNumberID != "" {
			graph = whatsapp.NewClient(cfg.WhatsAppToken, cfg.PhoneNumberID, logger.Component("whatsapp"))
			if cfg.GraphAPIBase != "" {
				graph.SetGraphAPIBase(cfg.GraphAPIBase)
			}
			sender = graph
		} else {
			logger.Warn("whatsapp credentials not set; replies are logged only")
			sender = whatsapp.NewStubSender(logger.Component("whatsapp"))
		}
	}

	app.Tokens = notify.NewTokenCache(st, cfg.StaffTokenTTL)
	notifier := BuildStaffNotifier(ctx, cfg, app.Tokens, st, BuildEmailSender(cfg, opts.AWS, logger), logger.Component("notify"))

	app.Dispatcher = pipeline.NewDispatcher(st, sender, notifier, pipeline.DispatcherConfig{
		StoreTimeout:  cfg.StoreTimeout,
		SendTimeout:   cfg.SendTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	}, app.Metrics, logger.Component("dispatcher"))

	loc := conversation.RestaurantLocation(cfg.RestaurantTimezone)
	deps := pipeline.Deps{
		Customers: st,
		Messages:  st,
		Gate:      idempotency.NewGate(st, cfg.DedupWindow, logger.Component("idempotency")),
		Limiter:   limiter,
		Assembler: conversation.NewAssembler(st, cfg.StoreTimeout, logger.Component("assembler")),
		Interpreter: conversation.NewInterpreter(llm, conversation.InterpreterConfig{
			Prompt: conversation.PromptConfig{
				Location:       loc,
				MaxReservation: cfg.MaxReservation(),
				ServiceType:    cfg.ServiceType,
				ClientContext:  cfg.ClientContext,
			},
			Model:   model,
			Timeout: cfg.LLMTimeout,
		}, logger.Component("interpreter")),
		Executor: bookings.NewExecutor(st, st, logger.Component("bookings"),
			bookings.WithMaxDuration(cfg.MaxReservation()),
		),
		Dispatcher: app.Dispatcher,
		Metrics:    app.Metrics,
	}
	if graph != nil {
		var archive *media.Store
		if cfg.MediaBucket != "" && opts.AWS != nil {
			archive = media.NewStore(s3.NewFromConfig(*opts.AWS), cfg.MediaBucket, logger.Component("media"))
		}
		deps.Media = media.NewIngestor(graph, archive, logger.Component("media"))
	}

	app.Pipeline = pipeline.New(deps, pipeline.Config{
		FallbackReply:       cfg.FallbackReply,
		MutationFailedReply: cfg.MutationFailedReply,
		UnsupportedReply:    cfg.UnsupportedReply,
		StoreTimeout:        cfg.StoreTimeout,
		MutationTimeout:     cfg.MutationTimeout,
	}, logger.Component("pipeline"))

	queue, err := BuildQueue(cfg, opts.AWS)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = queue
	app.Publisher = worker.NewPublisher(queue, logger.Component("publisher"))
	app.Webhook = whatsapp.NewWebhookHandler(whatsapp.WebhookConfig{
		VerifyToken:  cfg.VerifyToken,
		AppSecret:    cfg.WhatsAppAppSecret,
		RestaurantID: cfg.RestaurantID,
	}, app.Publisher, app.Metrics, logger.Component("webhook"))
	app.Staff = handlers.NewAdminStaffHandler(handlers.AdminStaffConfig{
		Devices:    st,
		Customers:  st,
		Dispatcher: app.Dispatcher,
		Tokens:     app.Tokens,
		Timeout:    cfg.SendTimeout,
		Logger:     logger.Component("admin"),
	})
	return app, nil
}

// BuildQueue returns the in-memory queue or SQS per USE_MEMORY_QUEUE.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (worker.Queue, error) {
	if cfg.UseMemoryQueue {
		return worker.NewMemoryQueue(256), nil
	}
	if strings.TrimSpace(cfg.EventQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: EVENT_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: aws config is required for SQS")
	}
	return worker.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.EventQueueURL), nil
}

// NewWorker builds the consumer pool over the app's queue.
func (a *App) NewWorker(logger *logging.Logger) *worker.Worker {
	return worker.New(a.Pipeline, a.Queue, logger,
		worker.WithWorkerCount(a.Config.WorkerCount),
		worker.WithReceiveWaitSeconds(20),
		worker.WithReceiveBatchSize(10),
	)
}

// Ready pings the backing database when there is one.
func (a *App) Ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

// Close releases connections opened by Build.
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
	if closer, ok := a.llm.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
