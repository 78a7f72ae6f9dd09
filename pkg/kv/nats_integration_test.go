//go:build integration

package kv

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func TestNATSStore(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	store, err := NewNATS(ctx, js, "transit_test", 5*time.Minute, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	key := "ask:integration " + time.Now().String()
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := store.Set(ctx, key, []byte("hello"), time.Minute); err != nil {
		t.Fatal(err)
	}
	v, err := store.Get(ctx, key)
	if err != nil || string(v) != "hello" {
		t.Fatalf("got %q %v", v, err)
	}
}
