package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxJitter = 30 * time.Minute

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, sessionID string) (*domain.CartSnapshot, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap domain.CartSnapshot
	if err2 := json.Unmarshal(data, &snap); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &snap, nil
}

// Set stores the snapshot. A write older than the cached version is refused
// with ErrStaleVersion.
func (r RedisCache) Set(ctx context.Context, snapshot *domain.CartSnapshot) error {
	key := cacheKey(snapshot.SessionID)
	jsonCart, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	ttl := r.baseTTL + jitter

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, errGet := tx.Get(ctx, key).Bytes()
		if errGet != nil && !errors.Is(errGet, redis.Nil) {
			return errGet
		}
		if errGet == nil {
			var cached domain.CartSnapshot
			if json.Unmarshal(current, &cached) == nil && cached.Version > snapshot.Version {
				return fmt.Errorf("%w: cached v%d, write v%d", ErrStaleVersion, cached.Version, snapshot.Version)
			}
		}
		_, errPipe := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(jsonCart), ttl)
			return nil
		})
		return errPipe
	}, key)
	if errors.Is(err, ErrStaleVersion) {
		return err
	}
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
