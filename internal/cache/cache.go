// Package cache provides the best-effort counter cache in front of the
// quota ledger. Lookups and writes can never fail observably: transport
// errors degrade to a miss or a no-op and callers fall through to the
// database, which stays the source of truth.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache stores small integer values with a TTL. Get reports absence both for
// missing keys and for any transport failure; Set silently drops writes that
// fail. No atomicity is guaranteed across keys.
type Cache interface {
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, value int64, ttl time.Duration)
}

// New returns a Redis-backed cache when addr is configured, otherwise an
// in-process fallback.
func New(addr, password string, db int) Cache {
	if strings.TrimSpace(addr) == "" {
		log.Info("cache: redis not configured, using in-process fallback")
		return NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		// A slow cache is worse than no cache on the quota hot path.
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	log.Infof("cache: using redis at %s", addr)
	return NewRedis(client)
}

// redisCache adapts a go-redis client to the Cache contract.
type redisCache struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client in the best-effort contract.
func NewRedis(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (int64, bool) {
	value, errGet := c.client.Get(ctx, key).Int64()
	if errGet != nil {
		if errGet != redis.Nil {
			log.WithError(errGet).Debug("cache: redis get failed")
		}
		return 0, false
	}
	return value, true
}

func (c *redisCache) Set(ctx context.Context, key string, value int64, ttl time.Duration) {
	if errSet := c.client.Set(ctx, key, value, ttl).Err(); errSet != nil {
		log.WithError(errSet).Debug("cache: redis set failed")
	}
}
