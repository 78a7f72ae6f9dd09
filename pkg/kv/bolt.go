package kv

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketCache = []byte("cache")

// Bolt is a Store persisted in a bbolt file. Each value is prefixed with its
// expiry as unix nanoseconds.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the cache file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCache)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create bucket: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

// Close closes the underlying file.
func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	expired := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketCache).Get([]byte(key))
		if len(raw) < 8 {
			return ErrMiss
		}
		exp := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8])))
		if !b.now().Before(exp) {
			expired = true
			return ErrMiss
		}
		out = make([]byte, len(raw)-8)
		copy(out, raw[8:])
		return nil
	})
	if expired {
		_ = b.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketCache).Delete([]byte(key))
		})
	}
	return out, err
}

func (b *Bolt) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(b.now().Add(ttl).UnixNano()))
	copy(buf[8:], value)
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), buf)
	})
}
