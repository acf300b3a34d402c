package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wa-commerce-bridge/internal/bridge"
	"github.com/wolfman30/wa-commerce-bridge/internal/catalog"
	appconfig "github.com/wolfman30/wa-commerce-bridge/internal/config"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
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
		logger.Warn("redis not available; catalog cache and dedup disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildCatalogFinder returns the WooCommerce finder, wrapped in a Redis cache
// when a client is available.
func BuildCatalogFinder(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (catalog.Finder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	client, err := catalog.NewClient(
		cfg.WooCommerceURL,
		cfg.WooCommerceConsumerKey,
		cfg.WooCommerceConsumerSecret,
		catalog.WithPageSize(cfg.CatalogPageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: catalog client: %w", err)
	}
	if redisClient == nil {
		return client, nil
	}
	logger.Info("catalog cache enabled", "ttl", cfg.CatalogCacheTTL.String())
	return catalog.NewCachedFinder(client, redisClient, cfg.CatalogCacheTTL, logger), nil
}

// BuildDeduper returns a Redis-backed message deduper, or nil without Redis.
func BuildDeduper(cfg *appconfig.Config, redisClient *redis.Client) bridge.Deduper {
	if cfg == nil || redisClient == nil {
		return nil
	}
	return bridge.NewRedisDeduper(redisClient, cfg.DedupTTL)
}
