package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/metrics"
)

// TTL classes.
const (
	DefaultTTL      = 24 * time.Hour
	FacetTTL        = time.Hour
	SimilarUsersTTL = time.Hour
	LastPriceTTL    = 24 * time.Hour
)

// Key builders. Every service goes through these so namespaces cannot drift.
func ProductKey(url string) string         { return "product:" + url }
func SearchKey(query string) string        { return "search:" + query }
func FiltersKey(detectionID string) string { return "filters:" + detectionID }
func LastPriceKey(productID string) string { return "lastPrice:" + productID }
func SimilarUsersKey(userID string) string { return "similar_users:" + userID }

// Cache is the JSON view over a CacheRepository. Backend errors never reach
// callers: a failed read is a miss and a failed write is dropped, both logged.
type Cache struct {
	repo       domain.CacheRepository
	logger     *slog.Logger
	defaultTTL time.Duration
}

// New wraps repo. A zero defaultTTL means DefaultTTL.
func New(repo domain.CacheRepository, logger *slog.Logger, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{repo: repo, logger: logger, defaultTTL: defaultTTL}
}

// GetJSON decodes the value at key into dst and reports whether it was found.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	ns := namespace(key)
	data, err := c.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			metrics.CacheOpsTotal.WithLabelValues(ns, "miss").Inc()
		} else {
			metrics.CacheOpsTotal.WithLabelValues(ns, "error").Inc()
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheOpsTotal.WithLabelValues(ns, "error").Inc()
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		return false
	}
	metrics.CacheOpsTotal.WithLabelValues(ns, "hit").Inc()
	return true
}

// SetJSON stores v at key. A non-positive ttl uses the default TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache value unencodable", "key", key, "error", err)
		return
	}
	if err := c.repo.Set(ctx, key, data, ttl); err != nil {
		metrics.CacheOpsTotal.WithLabelValues(namespace(key), "error").Inc()
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes key, logging failures.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.repo.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.repo.Close()
}

// Memoize returns the cached value at key, or computes, stores and returns it.
// The boolean reports a cache hit. Compute errors are returned and not cached.
func Memoize[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if c.GetJSON(ctx, key, &cached) {
		return cached, true, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	c.SetJSON(ctx, key, value, ttl)
	return value, false, nil
}

func namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
