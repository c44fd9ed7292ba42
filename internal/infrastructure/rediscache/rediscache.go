// Package rediscache provides a Redis-backed implementation of the auth
// identity cache.
//
// It serialises principals as JSON and relies on Redis key expiry for the
// TTL, so behaviour matches the in-process cache: expired entries are
// simply absent. Redis failures degrade to cache misses — the cache is a
// performance optimisation, never the source of truth, so a broken cache
// must not fail requests.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcossey/contacthub/internal/auth"
	"github.com/jcossey/contacthub/internal/infrastructure/config"
	"github.com/jcossey/contacthub/internal/infrastructure/logging"
)

// connectTimeout bounds the startup connectivity check.
const connectTimeout = 5 * time.Second

// keyPrefix namespaces identity cache keys within the Redis database.
const keyPrefix = "identity:"

// Cache is a Redis-backed auth.Cache.
type Cache struct {
	client *redis.Client
	logger *logging.Logger
}

// record is the stored form of a principal. It carries the fields that
// Principal hides from JSON serialisation (hash, refresh token), since the
// cache must hold a complete copy of the record.
type record struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	RefreshToken string    `json:"refresh_token"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg config.RedisConfig, logger *logging.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger.With("component", "rediscache"),
	}, nil
}

// Get returns the cached principal for the email, if present.
// Any Redis or decoding failure is treated as a miss.
func (c *Cache) Get(ctx context.Context, email string) (*auth.Principal, bool) {
	data, err := c.client.Get(ctx, keyPrefix+email).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", "error", err)
		}
		return nil, false
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		// Corrupt entry: drop it rather than serving garbage.
		c.logger.Warn("cache entry corrupt, dropping", "error", err)
		c.Invalidate(ctx, email)
		return nil, false
	}

	return &auth.Principal{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		RefreshToken: r.RefreshToken,
		Confirmed:    r.Confirmed,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, true
}

// Put stores the principal with the given TTL, overwriting any existing entry.
func (c *Cache) Put(ctx context.Context, email string, principal *auth.Principal, ttl time.Duration) {
	if principal == nil || ttl <= 0 {
		return
	}

	data, err := json.Marshal(record{
		ID:           principal.ID,
		Username:     principal.Username,
		Email:        principal.Email,
		PasswordHash: principal.PasswordHash,
		RefreshToken: principal.RefreshToken,
		Confirmed:    principal.Confirmed,
		CreatedAt:    principal.CreatedAt,
		UpdatedAt:    principal.UpdatedAt,
	})
	if err != nil {
		c.logger.Warn("cache put failed to marshal", "error", err)
		return
	}

	if err := c.client.Set(ctx, keyPrefix+email, data, ttl).Err(); err != nil {
		c.logger.Warn("cache put failed", "error", err)
	}
}

// Invalidate removes the entry for the email immediately.
func (c *Cache) Invalidate(ctx context.Context, email string) {
	if err := c.client.Del(ctx, keyPrefix+email).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", "error", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing redis client: %w", err)
	}
	return nil
}
