package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/restaurant-booking-ai/internal/bookings"
	"github.com/wolfman30/restaurant-booking-ai/internal/conversation"
	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/http/handlers"
	"github.com/wolfman30/restaurant-booking-ai/internal/idempotency"
	"github.com/wolfman30/restaurant-booking-ai/internal/notify"
	"github.com/wolfman30/restaurant-booking-ai/internal/pipeline"
	"github.com/wolfman30/restaurant-booking-ai/internal/store"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// Store is every persistence surface the service consumes. Both
// store.Postgres and store.MemoryStore satisfy it.
type Store interface {
	conversation.ContextReader
	idempotency.Lookup
	bookings.Repository
	bookings.TableCatalog
	pipeline.CustomerStore
	pipeline.MessageLog
	notify.TokenSource
	handlers.StaffDeviceStore
	handlers.ConversationStore
}

var (
	_ Store = (*store.Postgres)(nil)
	_ Store = (*store.MemoryStore)(nil)
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise. The returned pool is nil for the memory store.
func BuildStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (Store, *pgxpool.Pool, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		return store.NewMemoryStore(), nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return store.NewPostgres(pool), pool, nil
}
