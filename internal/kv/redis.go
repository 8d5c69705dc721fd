// ABOUTME: Redis-backed key-value store using go-redis.
// ABOUTME: Works against any Redis-protocol server, including hosted TLS endpoints.

package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 100

// Redis is a Store backed by a Redis server.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to the server at url (redis:// or rediss://).
// The connection is lazy; call Ping to verify reachability.
func NewRedis(url string) (*Redis, error) {
	if url == "" {
		return nil, errors.New("redis store requires a url")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	logger := slog.Default().With("component", "kv", "backend", BackendRedis)
	logger.Info("redis store initialized", "addr", opts.Addr, "db", opts.DB)

	return &Redis{client: redis.NewClient(opts), logger: logger}, nil
}

// Get returns the value stored at key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return v, nil
}

// Set writes value at key with no expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN rather than KEYS so a large
// database does not block the server.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN %q: %w", pattern, err)
	}
	return keys, nil
}

// Ping sends PING to the server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
