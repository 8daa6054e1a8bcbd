package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/supercomparador/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the part of the Redis client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis shares cached results between server instances. Failures are logged
// and reported as misses.
type Redis struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client RedisClient, prefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "redis_cache"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]models.ProductRecord, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var products []models.ProductRecord
	if err := json.Unmarshal(data, &products); err != nil {
		r.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}

	return products, true
}

func (r *Redis) Set(ctx context.Context, key string, products []models.ProductRecord) {
	data, err := json.Marshal(products)
	if err != nil {
		r.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}

	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
