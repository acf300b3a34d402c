package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 24 * time.Hour

// RedisDeduper remembers processed WhatsApp message ids so redeliveries from
// Meta are not answered twice.
type RedisDeduper struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisDeduper returns a deduper keyed under whatsapp:processed:<id>.
func NewRedisDeduper(redisClient *redis.Client, ttl time.Duration) *RedisDeduper {
	if redisClient == nil {
		panic("bridge: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisDeduper{redis: redisClient, ttl: ttl}
}

// MarkProcessed records id and reports whether this is its first sighting.
func (d *RedisDeduper) MarkProcessed(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	ok, err := d.redis.SetNX(ctx, dedupKey(id), time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("bridge: mark message processed: %w", err)
	}
	return ok, nil
}

func dedupKey(id string) string {
	return fmt.Sprintf("whatsapp:processed:%s", id)
}
