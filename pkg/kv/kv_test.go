package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryGetSetExpiry(t *testing.T) {
	now := time.Now()
	m := NewMemory(0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := m.Get(ctx, "eta:B1:S1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := m.Set(ctx, "eta:B1:S1", []byte(`{"eta_sec":120}`), 60*time.Second); err != nil {
		t.Fatal(err)
	}
	v, err := m.Get(ctx, "eta:B1:S1")
	if err != nil || string(v) != `{"eta_sec":120}` {
		t.Fatalf("got %q %v", v, err)
	}

	now = now.Add(60 * time.Second)
	if _, err := m.Get(ctx, "eta:B1:S1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry at ttl, got %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expired entry should be dropped, len=%d", m.Len())
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory(4)
	ctx := context.Background()
	in := []byte("abc")
	_ = m.Set(ctx, "k", in, time.Minute)
	in[0] = 'z'
	out, _ := m.Get(ctx, "k")
	if string(out) != "abc" {
		t.Fatalf("stored value mutated: %q", out)
	}
	out[1] = 'z'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliases store: %q", again)
	}
}

func TestMemoryEvictsSoonestExpiry(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	_ = m.Set(ctx, "short", []byte("1"), time.Second)
	_ = m.Set(ctx, "long", []byte("2"), time.Hour)
	_ = m.Set(ctx, "new", []byte("3"), time.Minute)
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
	if _, err := m.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Fatal("short-lived entry should have been evicted")
	}
	if _, err := m.Get(ctx, "long"); err != nil {
		t.Fatal("long-lived entry should survive")
	}
}

func TestBoltGetSetExpiry(t *testing.T) {
	b, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := b.Get(ctx, "weather:22.570:88.360"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := b.Set(ctx, "weather:22.570:88.360", []byte(`{"condition":"Haze"}`), 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	v, err := b.Get(ctx, "weather:22.570:88.360")
	if err != nil || string(v) != `{"condition":"Haze"}` {
		t.Fatalf("got %q %v", v, err)
	}
	now = now.Add(5 * time.Minute)
	if _, err := b.Get(ctx, "weather:22.570:88.360"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestHashKey(t *testing.T) {
	a := HashKey("ask:where is b1?")
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
	if a != HashKey("ask:where is b1?") || a == HashKey("ask:where is b2?") {
		t.Fatal("HashKey should be deterministic and distinguish keys")
	}
}

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) ([]byte, error) { return nil, b.err }
func (b brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return b.err
}

type payload struct {
	ETA int `json:"eta_sec"`
}

func TestCacheRoundTripWithPrefix(t *testing.T) {
	m := NewMemory(0)
	var lookups []bool
	c := NewCache[payload](m, "eta:", time.Minute, CacheOpts{OnLookup: func(hit bool) { lookups = append(lookups, hit) }})
	ctx := context.Background()

	if _, ok := c.Get(ctx, "B1:S1"); ok {
		t.Fatal("expected miss")
	}
	c.Set(ctx, "B1:S1", payload{ETA: 300})
	if _, err := m.Get(ctx, "eta:B1:S1"); err != nil {
		t.Fatalf("expected prefixed key in store: %v", err)
	}
	v, ok := c.Get(ctx, "B1:S1")
	if !ok || v.ETA != 300 {
		t.Fatalf("got %+v %v", v, ok)
	}
	if len(lookups) != 2 || lookups[0] || !lookups[1] {
		t.Fatalf("lookups = %v", lookups)
	}
	if c.TTL() != time.Minute {
		t.Fatalf("ttl = %v", c.TTL())
	}
}

func TestCacheTreatsFailuresAsMiss(t *testing.T) {
	ctx := context.Background()
	broken := NewCache[payload](brokenStore{err: errors.New("connection refused")}, "eta:", time.Minute, CacheOpts{})
	broken.Set(ctx, "k", payload{ETA: 1})
	if _, ok := broken.Get(ctx, "k"); ok {
		t.Fatal("store error should be a miss")
	}

	m := NewMemory(0)
	_ = m.Set(ctx, "eta:k", []byte("not json"), time.Minute)
	c := NewCache[payload](m, "eta:", time.Minute, CacheOpts{})
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("undecodable value should be a miss")
	}
}

func TestNilCacheAlwaysMisses(t *testing.T) {
	var c *Cache[payload]
	c.Set(context.Background(), "k", payload{})
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("nil cache should miss")
	}
	noStore := NewCache[payload](nil, "x:", time.Minute, CacheOpts{})
	noStore.Set(context.Background(), "k", payload{})
	if _, ok := noStore.Get(context.Background(), "k"); ok {
		t.Fatal("cache without store should miss")
	}
}
