package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/models"
)

// Redis is the shared-backend cache. Values are JSON; TTL is enforced
// server-side. Backend errors degrade to cache misses so a Redis outage
// never takes the pipeline down with it.
type Redis struct {
	client *redis.Client
}

// NewRedis connects a cache to the given Redis instance.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewRedisFromClient wraps an existing client, for tests and shared pools.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (*models.PriceData, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis get failed, treating as miss")
		return nil, false
	}
	var pd models.PriceData
	if err := json.Unmarshal(raw, &pd); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("corrupt cached price, treating as miss")
		return nil, false
	}
	return &pd, true
}

func (r *Redis) Set(ctx context.Context, key string, pd *models.PriceData, ttl time.Duration) {
	if pd == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(pd)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("price marshal failed, skipping cache write")
		return
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// Ping verifies connectivity at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}
