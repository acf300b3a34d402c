package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

const defaultCacheTTL = 5 * time.Minute

// CachedFinder memoizes successful lookups in Redis. Redis failures are
// logged and the lookup goes straight to the wrapped Finder.
type CachedFinder struct {
	next   Finder
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedFinder(next Finder, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedFinder {
	if next == nil {
		panic("catalog: finder cannot be nil")
	}
	if redisClient == nil {
		panic("catalog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedFinder{next: next, redis: redisClient, ttl: ttl, logger: logger}
}

func (f *CachedFinder) FindProducts(ctx context.Context, query string) ([]Product, error) {
	key := cacheKey(query)

	data, err := f.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Product
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return cached, nil
		}
		f.logger.Warn("catalog: discarding undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		f.logger.Warn("catalog: cache read failed", "error", err)
	}

	products, err := f.next.FindProducts(ctx, query)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(products)
	if err != nil {
		return products, nil
	}
	if err := f.redis.Set(ctx, key, payload, f.ttl).Err(); err != nil {
		f.logger.Warn("catalog: cache write failed", "error", err)
	}
	return products, nil
}

func cacheKey(query string) string {
	return fmt.Sprintf("catalog:search:%s", strings.ToLower(strings.TrimSpace(query)))
}
