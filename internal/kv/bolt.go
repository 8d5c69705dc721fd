// ABOUTME: bbolt-backed key-value store keeping all keys in one bucket.
// ABOUTME: Suited to a single gateway process with a local data directory.

package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("kv")

// Bolt is a Store backed by a bbolt file.
type Bolt struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBolt opens (or creates) a bbolt database at path.
// Parent directories are created if needed.
func NewBolt(dbPath string) (*Bolt, error) {
	if dbPath == "" {
		return nil, errors.New("bolt store requires a path")
	}
	logger := slog.Default().With("component", "kv", "backend", BackendBolt)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	logger.Info("bolt store initialized", "path", dbPath)
	return &Bolt{db: db, logger: logger}, nil
}

// Get returns the value stored at key.
func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set writes value at key.
func (b *Bolt) Set(ctx context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Keys returns matching keys in byte order.
func (b *Bolt) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := []byte(literalPrefix(pattern))
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if re.Match(k) {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping checks that the database can open a read transaction.
func (b *Bolt) Ping(ctx context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the database file.
func (b *Bolt) Close() error {
	b.logger.Info("closing bolt store")
	return b.db.Close()
}
