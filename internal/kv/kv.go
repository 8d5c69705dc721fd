// ABOUTME: Key-value store interface used for conversation documents.
// ABOUTME: Backends: memory, bbolt, sqlite and redis, selected by Open.

package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Store is a flat key-value store over opaque byte values.
// There are no transactions and no compare-and-swap: Set always overwrites.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Keys returns keys matching a glob pattern ("*", "?", "[...]"). Wildcards
	// match any byte, including "/", as Redis MATCH does.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Path is the database file for bolt and sqlite.
	Path string
	// URL is a redis:// or rediss:// connection URL.
	URL string
}

// Open creates the backend named in cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendBolt:
		return NewBolt(cfg.Path)
	case BackendSQLite:
		return NewSQLite(cfg.Path)
	case BackendRedis:
		return NewRedis(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// literalPrefix returns the part of a glob pattern before its first
// wildcard, used by ordered backends to narrow a scan.
func literalPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '\\':
			return pattern[:i]
		}
	}
	return pattern
}
