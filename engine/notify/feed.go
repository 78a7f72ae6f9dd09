package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/pkg/natsutil"
)

// Feed mirrors the last RecentSize events published on {prefix}.> so a
// process that runs no notifier can still report recent deliveries. Every
// feed sees every event; it does not join the worker queue.
type Feed struct {
	sub *nats.Subscription

	mu     sync.Mutex
	events []domain.NotificationEvent
}

// WatchFeed subscribes to {prefix}.>.
func WatchFeed(nc *nats.Conn, prefix string) (*Feed, error) {
	f := &Feed{}
	sub, err := natsutil.Subscribe(nc, prefix+".>", func(_ context.Context, ev domain.NotificationEvent) {
		f.add(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: watch %s.>: %w", prefix, err)
	}
	f.sub = sub
	return f, nil
}

func (f *Feed) add(ev domain.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.events) > RecentSize {
		f.events = f.events[len(f.events)-RecentSize:]
	}
}

// Recent returns the mirrored events, oldest first.
func (f *Feed) Recent() []domain.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NotificationEvent(nil), f.events...)
}

// Close stops the subscription.
func (f *Feed) Close() error { return f.sub.Unsubscribe() }
