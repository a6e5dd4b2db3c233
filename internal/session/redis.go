package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a hash so replicas of the BFF share
// sessions. Every write extends the hash's expiry.
type RedisStore struct {
	client    redis.Cmdable
	ttl       time.Duration
	namespace string
}

// NewRedisStore creates a RedisStore. Keys are "formdesk:session:<id>".
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, namespace: "formdesk:session:"}
}

func (r *RedisStore) key(sessionID string) string {
	return r.namespace + sessionID
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: redis hget: %w", err)
	}
	return v, true, nil
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	k := r.key(sessionID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, key, value)
		if r.ttl > 0 {
			p.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis hset: %w", err)
	}
	return nil
}

// Remove implements Store.
func (r *RedisStore) Remove(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("session: redis hdel: %w", err)
	}
	return nil
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// HealthCheck implements Store.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Store. The client is owned by the caller.
func (r *RedisStore) Close() error { return nil }
