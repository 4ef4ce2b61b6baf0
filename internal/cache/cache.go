// Package cache is the process-wide TTL cache for provider lookups. A hit
// never costs anything, so repeated lookups across campaigns are free.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend persists entries beyond the life of the process. Implemented by
// the SQLite and Postgres stores.
type Backend interface {
	GetCacheEntry(ctx context.Context, key string) (value []byte, expiresAt time.Time, found bool, err error)
	SetCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error)
}

// Stats counts cache traffic since the cache was created.
type Stats struct {
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	BackendHits int64   `json:"backend_hits"`
	Sets        int64   `json:"sets"`
	Expired     int64   `json:"expired"`
	HitRate     float64 `json:"hit_rate"`
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a mutex-guarded map with per-entry expiry and an optional
// persistent backend consulted on L1 misses.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	backend Backend

	hits, misses, backendHits, sets, expired int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend sets the persistent second level.
func WithBackend(b Backend) Option {
	return func(c *Cache) { c.backend = b }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key builds a deterministic key from the provider name and the normalized
// lookup fields.
func Key(provider string, fields ...string) string {
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = strings.ToLower(strings.Join(strings.Fields(f), " "))
	}
	h := sha256.Sum256([]byte(strings.Join(norm, "|")))
	return fmt.Sprintf("%s:%x", strings.ToLower(provider), h)
}

// Get returns the cached value for key. Expired entries are misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.nowFunc()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.value, true
	}

	c.mu.Lock()
	if ok {
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && !now.Before(cur.expiresAt) {
			delete(c.entries, key)
			c.expired++
		}
	}
	c.mu.Unlock()

	if c.backend != nil {
		val, exp, found, err := c.backend.GetCacheEntry(ctx, key)
		if err != nil {
			zap.L().Warn("cache: backend get failed", zap.String("key", keyPrefix(key)), zap.Error(err))
		} else if found && now.Before(exp) {
			c.mu.Lock()
			c.entries[key] = entry{value: val, expiresAt: exp}
			c.hits++
			c.backendHits++
			c.mu.Unlock()
			return val, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Set stores value under key for ttl. A non-positive ttl is ignored.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	exp := c.nowFunc().Add(ttl)

	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: exp}
	c.sets++
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.SetCacheEntry(ctx, key, value, exp); err != nil {
			zap.L().Warn("cache: backend set failed", zap.String("key", keyPrefix(key)), zap.Error(err))
		}
	}
}

// Delete removes key from the in-memory level.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) int {
	now := c.nowFunc()

	c.mu.Lock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.expired += int64(n)
	c.mu.Unlock()

	if c.backend != nil {
		if removed, err := c.backend.DeleteExpiredCache(ctx, now); err != nil {
			zap.L().Warn("cache: backend purge failed", zap.Error(err))
		} else if removed > 0 {
			zap.L().Debug("cache: purged backend entries", zap.Int64("removed", removed))
		}
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Entries:     len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		BackendHits: c.backendHits,
		Sets:        c.sets,
		Expired:     c.expired,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func keyPrefix(key string) string {
	if len(key) > 24 {
		return key[:24]
	}
	return key
}
