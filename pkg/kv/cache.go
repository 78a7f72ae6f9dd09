package kv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Cache is a typed JSON view over a Store with a fixed key prefix and TTL.
// It never fails: store errors and undecodable values are reported as misses
// and write failures are logged. A nil *Cache or nil Store always misses.
type Cache[T any] struct {
	store    Store
	prefix   string
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	onLookup func(hit bool)
}

// CacheOpts configures a Cache.
type CacheOpts struct {
	// Timeout bounds every store call (default 500ms).
	Timeout time.Duration
	Logger  *slog.Logger
	// OnLookup observes every Get outcome.
	OnLookup func(hit bool)
}

// NewCache creates a typed cache writing keys as prefix+key.
func NewCache[T any](store Store, prefix string, ttl time.Duration, opts CacheOpts) *Cache[T] {
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache[T]{
		store:    store,
		prefix:   prefix,
		ttl:      ttl,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		onLookup: opts.OnLookup,
	}
}

// TTL returns the entry lifetime.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// Get returns the cached value for key.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	if c == nil || c.store == nil {
		return zero, false
	}
	v, ok := c.get(ctx, key)
	if c.onLookup != nil {
		c.onLookup(ok)
	}
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Cache[T]) get(ctx context.Context, key string) (T, bool) {
	var v T
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("kv: cache get failed, treating as miss", "key", c.prefix+key, "err", err)
		}
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("kv: cached value undecodable, treating as miss", "key", c.prefix+key, "err", err)
		return v, false
	}
	return v, true
}

// Set stores v under key.
func (c *Cache[T]) Set(ctx context.Context, key string, v T) {
	if c == nil || c.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("kv: cache encode failed", "key", c.prefix+key, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.store.Set(ctx, c.prefix+key, raw, c.ttl); err != nil {
		c.logger.Warn("kv: cache set failed", "key", c.prefix+key, "err", err)
	}
}
