package predictor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/lesion-check/internal/logging"
)

// Cache abstracts the Redis operations used by CachingClient to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get reads a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// CachingClient serves repeated submissions of identical bytes from a short
// lived cache. Cache failures are logged and never fail a prediction.
type CachingClient struct {
	next           Client
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCachingClient wraps next with cache.
func NewCachingClient(next Client, cache Cache, ttl time.Duration, logger *zap.Logger) *CachingClient {
	return &CachingClient{
		next:           next,
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("prediction_cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// CacheKey is the cache key of an image payload.
func CacheKey(image []byte) string {
	sum := sha1.Sum(image)
	return fmt.Sprintf("prediction:%s", hex.EncodeToString(sum[:]))
}

// Predict returns a cached result for identical bytes unless req.Refresh is
// set, and otherwise stores the fresh result for later submissions.
func (c *CachingClient) Predict(ctx context.Context, req Request) (*Result, error) {
	key := CacheKey(req.Image)
	opLogger := logging.WithOperation(c.logger, "cache.predict", req.SubmissionID)

	var (
		cached string
		err    error = redis.Nil
	)
	if !req.Refresh {
		cached, err = c.withRetryGet(ctx, req.SubmissionID, "cache.get.result", key)
	}
	switch {
	case err == nil:
		var result Result
		if err := json.Unmarshal([]byte(cached), &result); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
			break
		}
		if err := result.Validate(); err != nil {
			opLogger.Warn("cached result failed validation", zap.Error(err))
			break
		}
		result.Cached = true
		opLogger.Info("prediction served from cache", zap.String("key", key))
		return &result, nil
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	result, err := c.next.Predict(ctx, req)
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		opLogger.Warn("failed to serialize result", zap.Error(err))
		return result, nil
	}
	if err := c.withRetry(ctx, req.SubmissionID, "cache.set.result", func() error {
		return c.cache.Set(ctx, key, string(serialized), c.ttl)
	}); err != nil {
		opLogger.Warn("failed to cache result", zap.Error(err))
	}
	return result, nil
}

// withRetry retries fn on transient Redis errors with capped exponential backoff.
func (c *CachingClient) withRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if c.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := c.initialBackoff
	opLogger := logging.WithOperation(c.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= c.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == c.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (c *CachingClient) withRetryGet(ctx context.Context, requestID, operation, key string) (string, error) {
	var result string
	err := c.withRetry(ctx, requestID, operation, func() error {
		value, err := c.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
