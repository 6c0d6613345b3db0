package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, allowing
// the limit to be shared across multiple instances of the service.
// It uses a fixed window counter (INCR + EXPIRE on first hit).
//
// On Redis errors the store fails open: the request is allowed and the
// error is counted, so a Redis outage degrades rate limiting instead of
// taking down the API.
type RedisRateLimitStore struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *Metrics
}

// NewRedisRateLimitStore creates a new Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used to report Redis failures.
func (s *RedisRateLimitStore) WithLogger(logger *slog.Logger) *RedisRateLimitStore {
	s.logger = logger
	return s
}

// WithMetrics sets the metrics used to count Redis errors.
func (s *RedisRateLimitStore) WithMetrics(metrics *Metrics) *RedisRateLimitStore {
	s.metrics = metrics
	return s
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := "ratelimit:" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		s.failOpen(err)
		return true, 0
	}

	count := incr.Val()
	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(err)
		return true, 0
	}

	retryAfter := int(ttl.Seconds())
	if retryAfter <= 0 {
		retryAfter = int(config.WindowDuration / time.Second)
		if retryAfter <= 0 {
			retryAfter = 1
		}
	}
	return false, retryAfter
}

func (s *RedisRateLimitStore) failOpen(err error) {
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
	s.logger.Warn("rate limit store unavailable, failing open", "error", err)
}
