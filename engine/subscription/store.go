// Package subscription persists standing ETA alert requests.
package subscription

import (
	"context"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

// Store holds subscriptions. The notifier only reads through ListActive.
type Store interface {
	// ListActive returns up to limit active subscriptions, oldest first.
	// limit <= 0 means no limit.
	ListActive(ctx context.Context, limit int) ([]domain.Subscription, error)
	// List returns every subscription, active or not.
	List(ctx context.Context) ([]domain.Subscription, error)
	// Add stores s as active and returns it with its assigned id.
	Add(ctx context.Context, s domain.Subscription) (domain.Subscription, error)
	// Deactivate marks a subscription inactive. Unknown ids yield
	// domain.ErrNotFound.
	Deactivate(ctx context.Context, id int64) error
	Close() error
}

func withDefaults(s domain.Subscription) domain.Subscription {
	if s.NotifyBeforeSec == "" {
		s.NotifyBeforeSec = "300"
	}
	if s.Channel == "" {
		s.Channel = domain.ChannelConsole
	}
	if s.Policy.DelayThresholdSec == 0 {
		s.Policy.DelayThresholdSec = domain.DefaultDelayThresholdSec
	}
	s.Active = true
	return s
}
