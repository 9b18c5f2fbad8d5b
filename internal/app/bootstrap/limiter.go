package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/restaurant-booking-ai/internal/config"
	"github.com/wolfman30/restaurant-booking-ai/internal/ratelimit"
	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// BuildLimiter returns the per-customer limiter for RATE_LIMIT_BACKEND,
// wrapped so a backend outage admits traffic instead of dropping it.
func BuildLimiter(cfg *appconfig.Config, redisClient redis.Cmdable, awsCfg *aws.Config, logger *logging.Logger) (ratelimit.Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	policy := ratelimit.Policy{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow}

	var backend ratelimit.Limiter
	switch cfg.RateLimitBackend {
	case "", "memory":
		return ratelimit.NewMemoryLimiter(policy), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: REDIS_ADDR is required for the redis rate limiter")
		}
		backend = ratelimit.NewRedisLimiter(redisClient, policy)
	case "dynamodb":
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config is required for the dynamodb rate limiter")
		}
		backend = ratelimit.NewDynamoLimiter(dynamodb.NewFromConfig(*awsCfg), cfg.RateLimitTable, policy)
	default:
		return nil, fmt.Errorf("bootstrap: unknown RATE_LIMIT_BACKEND %q", cfg.RateLimitBackend)
	}
	logger.Info("rate limiter configured", "backend", cfg.RateLimitBackend, "max", policy.Max, "window", policy.Window.String())
	return ratelimit.NewFailOpen(backend, logger), nil
}
