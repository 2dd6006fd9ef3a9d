package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

var _ QueryCache = (*RedisQueryCache)(nil)

type RedisQueryCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisQueryCache(client *redis.Client, ttl time.Duration) *RedisQueryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisQueryCache{
		client:  client,
		baseTTL: ttl,
	}
}

func (r *RedisQueryCache) Get(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}

	if err = json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal cached query failed: %w", err)
	}
	return nil
}

func (r *RedisQueryCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal query failed: %w", err)
	}

	// up to 10% jitter so terminals opened together do not expire together
	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(r.baseTTL)/10+1))
	if err = r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisQueryCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
