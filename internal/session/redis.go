package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a redis client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

const (
	sessionKeyPrefix = "session:"
	revokedKeyPrefix = "revoked:"
)

// RedisCache implements Cache on redis with per-key TTLs.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a redis client as the session cache tier.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Has(ctx context.Context, tokenHash string) (bool, error) {
	n, err := c.client.Exists(ctx, sessionKeyPrefix+tokenHash).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Put(ctx context.Context, tokenHash string, ttl time.Duration) error {
	return c.client.Set(ctx, sessionKeyPrefix+tokenHash, "1", ttl).Err()
}

func (c *RedisCache) Evict(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, sessionKeyPrefix+tokenHash).Err()
}

// RedisRevocationSet tracks revoked token jti values. Entries for expiring
// tokens lapse with the token; API-key entries are kept indefinitely.
type RedisRevocationSet struct {
	client *redis.Client
}

// NewRedisRevocationSet wraps a redis client as the jti revocation set.
func NewRedisRevocationSet(client *redis.Client) *RedisRevocationSet {
	return &RedisRevocationSet{client: client}
}

func (s *RedisRevocationSet) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (s *RedisRevocationSet) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
