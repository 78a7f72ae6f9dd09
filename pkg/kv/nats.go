package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATS is a Store backed by JetStream key-value buckets. JetStream expires
// whole buckets, not keys, so one bucket exists per configured TTL and Set
// writes to the smallest bucket whose TTL covers the requested one.
type NATS struct {
	buckets []natsBucket // ascending TTL
}

type natsBucket struct {
	ttl time.Duration
	kv  jetstream.KeyValue
}

// NewNATS creates or binds one bucket per ttl, named "{prefix}_{seconds}s".
func NewNATS(ctx context.Context, js jetstream.JetStream, prefix string, ttls ...time.Duration) (*NATS, error) {
	if len(ttls) == 0 {
		return nil, errors.New("kv: nats store needs at least one ttl")
	}
	sort.Slice(ttls, func(i, j int) bool { return ttls[i] < ttls[j] })
	n := &NATS{}
	for _, ttl := range ttls {
		name := fmt.Sprintf("%s_%ds", prefix, int(ttl.Seconds()))
		b, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  name,
			TTL:     ttl,
			History: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("kv: bucket %s: %w", name, err)
		}
		n.buckets = append(n.buckets, natsBucket{ttl: ttl, kv: b})
	}
	return n, nil
}

// Get looks the key up in every bucket, shortest TTL first.
func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	k := HashKey(key)
	for _, b := range n.buckets {
		entry, err := b.kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kv: nats get: %w", err)
		}
		return entry.Value(), nil
	}
	return nil, ErrMiss
}

func (n *NATS) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b := n.buckets[len(n.buckets)-1]
	for _, cand := range n.buckets {
		if cand.ttl >= ttl {
			b = cand
			break
		}
	}
	if _, err := b.kv.Put(ctx, HashKey(key), value); err != nil {
		return fmt.Errorf("kv: nats put: %w", err)
	}
	return nil
}
