// Package kv provides get/set-with-TTL key-value stores and a typed JSON
// cache on top of them. Stores report misses with ErrMiss; the typed cache
// turns every failure into a miss.
package kv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when a key is absent or expired.
var ErrMiss = errors.New("kv: miss")

// Store is a key-value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashKey maps an arbitrary key onto a fixed-length token safe for stores
// with restricted key alphabets.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
