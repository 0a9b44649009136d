// Package cache provides an optional Redis-backed cache for computed energy
// stats, so hot dashboards do not rescan the reading store on every poll.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/housewatch/household-watch/internal/stats"
)

const statsKey = "energy:stats"

// RedisClient wraps the redis connection used for stats caching.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisClient{client: rdb}, nil
}

// Close closes the connection pool.
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// SaveEnergyStats caches a computed rollup for ttl.
func (rc *RedisClient) SaveEnergyStats(ctx context.Context, es stats.EnergyStats, ttl time.Duration) error {
	data, err := json.Marshal(es)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, statsKey, data, ttl).Err()
}

// GetEnergyStats returns the cached rollup, or nil on a miss.
func (rc *RedisClient) GetEnergyStats(ctx context.Context) (*stats.EnergyStats, error) {
	val, err := rc.client.Get(ctx, statsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var es stats.EnergyStats
	if err := json.Unmarshal([]byte(val), &es); err != nil {
		return nil, err
	}
	return &es, nil
}
