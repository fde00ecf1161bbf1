// Package rediscache adapts Redis into the core.Cache capability the
// Resilience Manager's cache dependency class guards. Its one consumer
// in this module is the Job Processor, which caches DataSource
// descriptors there and reads them back only when a Record Store
// lookup fails.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// Config holds the Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Cache wraps a redis.Client behind core.Cache.
type Cache struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// New dials Redis and verifies connectivity with a bounded ping.
func New(cfg Config, logger ectologger.Logger) (*Cache, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: connect to %s: %w", addr, err)
	}

	logger.Infof("rediscache: connected to %s", addr)
	return &Cache{rdb: rdb, logger: logger}, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Get implements core.Cache. A miss is reported as (nil, false, nil),
// not an error — callers degrade gracefully on absence.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "rediscache.Cache.Get")
	defer span.End()

	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("rediscache: get %s failed", key)
		return nil, false, err
	}
	return val, true, nil
}

// Set implements core.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "rediscache.Cache.Set")
	defer span.End()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("rediscache: set %s failed", key)
		return err
	}
	return nil
}

// Delete implements core.Cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "rediscache.Cache.Delete")
	defer span.End()

	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("rediscache: delete %s failed", key)
		return err
	}
	return nil
}

var _ core.Cache = (*Cache)(nil)
