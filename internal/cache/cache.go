// Package cache is a best-effort wrapper around Redis. A backend failure is
// logged and reported as a miss (on reads) or swallowed (on writes): the
// cache is a pure optimization layer and must never fail a request.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// AliasTTL bounds the staleness window of cached alias resolutions. The
	// cached record may carry a shorter click log than the store; only its
	// longUrl is trusted, so no invalidation on click appends is needed.
	AliasTTL = 1 * time.Hour
	// AnalyticsTTL bounds the overall/topic analytics views.
	AnalyticsTTL = 10 * time.Minute
	// UserTTL bounds the cached user profile.
	UserTTL = 15 * time.Minute
)

func AliasKey(alias string) string { return "shortUrl:" + alias }

func OverallKey(userID string) string { return "overallAnalytics:" + userID }

func TopicKey(userID, topic string) string { return "topicAnalytics:" + userID + ":" + topic }

func UserKey(subject string) string { return "user:" + subject }

type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get returns the cached value and whether it was present. Backend errors
// count as misses.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		slog.Warn("cache read failed, treating as miss", "key", key, "err", err)
		return "", false
	}
	return val, true
}

// Set stores val under key with the given TTL. Failures are logged only.
func (c *Cache) Set(ctx context.Context, key, val string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "err", err)
	}
}
