package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CacheTTL of zero keeps entries until they are overwritten.
	CacheTTL time.Duration
	// KeyPrefix namespaces the snapshot keys; defaults to "hostwatch:latest:".
	KeyPrefix string
}

// RedisSnapshotCache is a SnapshotCache shared between agents through Redis.
// Snapshots are stored as JSON strings.
type RedisSnapshotCache struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	prefix      string
}

// NewRedisSnapshotCache creates and connects a new RedisSnapshotCache.
func NewRedisSnapshotCache(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisSnapshotCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis for snapshot cache: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis for SnapshotCache.")

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "hostwatch:latest:"
	}
	return &RedisSnapshotCache{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisSnapshotCache").Logger(),
		ttl:         cfg.CacheTTL,
		prefix:      prefix,
	}, nil
}

// Set marshals s to JSON and stores it with the configured TTL.
func (c *RedisSnapshotCache) Set(ctx context.Context, s measurement.Snapshot) error {
	key := c.prefix + s.Key()
	jsonData, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for key %s: %w", key, err)
	}
	if err := c.redisClient.Set(ctx, key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis for key %s: %w", key, err)
	}
	return nil
}

// Fetch retrieves and unmarshals a snapshot from Redis.
func (c *RedisSnapshotCache) Fetch(ctx context.Context, key string) (measurement.Snapshot, error) {
	cachedData, err := c.redisClient.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return measurement.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return measurement.Snapshot{}, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	var s measurement.Snapshot
	if err := json.Unmarshal(cachedData, &s); err != nil {
		return measurement.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot for key %s: %w", key, err)
	}
	return s, nil
}

// List scans the keys of kind and returns their snapshots ordered by subject.
// Keys that expire between the scan and the read are skipped.
func (c *RedisSnapshotCache) List(ctx context.Context, kind measurement.Kind) ([]measurement.Snapshot, error) {
	pattern := c.prefix + string(kind) + "/*"
	var keys []string
	iter := c.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed for %s: %w", pattern, err)
	}

	out := make([]measurement.Snapshot, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := c.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed for %s: %w", pattern, err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s measurement.Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			c.logger.Warn().Err(err).Str("key", keys[i]).Msg("Skipping undecodable snapshot.")
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// Delete removes a key from Redis.
func (c *RedisSnapshotCache) Delete(ctx context.Context, key string) error {
	if err := c.redisClient.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (c *RedisSnapshotCache) Close() error {
	if c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}
