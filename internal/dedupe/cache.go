// ABOUTME: Thread-safe TTL cache that claims request ids and remembers their results.
// ABOUTME: Used by the chat endpoint to reject replays of the same requestId.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry[V any] struct {
	claimed time.Time
	value   V
	done    bool
	element *list.Element
}

// Cache tracks keys for ttl, holding at most maxSize of them. The oldest
// claim is evicted first when full.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	order   *list.List // keys, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweep.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Claim marks key as in use. It returns false if the key was already
// claimed and has not expired; in that case prior holds the stored result,
// if any, and ready reports whether one was stored.
func (c *Cache[V]) Claim(key string) (prior V, ready, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, found := c.entries[key]; found && !c.expired(e) {
		return e.value, e.done, false
	}

	c.removeLocked(key)
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &entry[V]{
		claimed: c.now(),
		element: c.order.PushBack(key),
	}
	var zero V
	return zero, false, true
}

// Complete stores the result for a claimed key. Unknown keys are ignored.
func (c *Cache[V]) Complete(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, found := c.entries[key]; found {
		e.value = value
		e.done = true
	}
}

// Release drops a claim so the key can be used again, e.g. after the
// request it guarded was rejected.
func (c *Cache[V]) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Seen reports whether key holds an unexpired claim.
func (c *Cache[V]) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	return found && !c.expired(e)
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) expired(e *entry[V]) bool {
	return c.now().Sub(e.claimed) >= c.ttl
}

// removeLocked deletes key. Must be called with mu held.
func (c *Cache[V]) removeLocked(key string) {
	if e, found := c.entries[key]; found {
		c.order.Remove(e.element)
		delete(c.entries, key)
	}
}

// evictOldest drops the front of the order list. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

func (c *Cache[V]) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.done:
			return
		}
	}
}

// purgeExpired walks from the oldest claim and stops at the first live one.
func (c *Cache[V]) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if !c.expired(c.entries[key]) {
			return
		}
		c.order.Remove(front)
		delete(c.entries, key)
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
