// Package notify re-runs the answer pipeline for every active subscription
// on a fixed interval and alerts subscribers whose bus is close.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/pkg/metrics"
)

// Defaults for Options.
const (
	DefaultInterval = 60 * time.Second
	DefaultBatch    = 20
	DefaultPacing   = 100 * time.Millisecond
	RecentSize      = 20
)

var tracer = otel.Tracer("transit/engine/notify")

// Answerer runs the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string) *domain.Answer
}

// Source lists subscriptions to evaluate.
type Source interface {
	ListActive(ctx context.Context, limit int) ([]domain.Subscription, error)
}

// Options tunes a Notifier. Zero values take the defaults.
type Options struct {
	Interval time.Duration
	Batch    int
	// Limiter paces evaluations within a tick. Defaults to one every
	// DefaultPacing.
	Limiter *rate.Limiter
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Notifier is the proactive alert loop.
type Notifier struct {
	answerer Answerer
	source   Source
	channel  Channel
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	sent   map[string]bool
	recent []domain.NotificationEvent

	count func(outcome string)
}

// New creates a Notifier delivering through ch.
func New(answerer Answerer, source Source, ch Channel, opts Options) *Notifier {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Batch <= 0 {
		opts.Batch = DefaultBatch
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(DefaultPacing), 1)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	n := &Notifier{
		answerer: answerer,
		source:   source,
		channel:  ch,
		opts:     opts,
		logger:   opts.Logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		sent:     make(map[string]bool),
		count:    func(string) {},
	}
	if opts.Metrics != nil {
		c := opts.Metrics.Counter("transit_notifier_subscriptions_total", "Evaluated subscriptions by outcome", "outcome")
		n.count = func(outcome string) { c.WithLabelValues(outcome).Inc() }
	}
	return n
}

// Subscription outcomes of one evaluation.
const (
	OutcomeNotified   = "notified"
	OutcomeNotDue     = "not_due"
	OutcomeNoETA      = "no_eta"
	OutcomeIncomplete = "incomplete"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
)

// TickStats summarises one scan.
type TickStats struct {
	Scanned  int
	Notified int
	Skipped  int
	Failed   int
}

// Run ticks immediately and then every Interval until ctx is done. Ticks
// never overlap.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Info("notifier started", "interval", n.opts.Interval, "batch", n.opts.Batch)
	ticker := time.NewTicker(n.opts.Interval)
	defer ticker.Stop()
	for {
		n.Tick(ctx)
		select {
		case <-ctx.Done():
			n.logger.Info("notifier stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one scan over up to Batch active subscriptions.
func (n *Notifier) Tick(ctx context.Context) TickStats {
	ctx, span := tracer.Start(ctx, "notify.tick")
	defer span.End()

	var stats TickStats
	subs, err := n.source.ListActive(ctx, n.opts.Batch)
	if err != nil {
		n.logger.Error("notifier: load subscriptions", "err", err)
		return stats
	}
	if len(subs) > n.opts.Batch {
		subs = subs[:n.opts.Batch]
	}
	for _, sub := range subs {
		if err := n.opts.Limiter.Wait(ctx); err != nil {
			break
		}
		stats.Scanned++
		switch outcome := n.evaluate(ctx, sub); outcome {
		case OutcomeNotified:
			stats.Notified++
		case OutcomeFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}
	span.SetAttributes(
		attribute.Int("scanned", stats.Scanned),
		attribute.Int("notified", stats.Notified),
	)
	if stats.Scanned > 0 {
		n.logger.Debug("notifier tick", "scanned", stats.Scanned, "notified", stats.Notified, "failed", stats.Failed)
	}
	return stats
}

func (n *Notifier) evaluate(ctx context.Context, sub domain.Subscription) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notifier: subscription panicked", "id", sub.ID, "panic", fmt.Sprint(r))
			outcome = OutcomeFailed
		}
		n.count(outcome)
	}()

	if !sub.Complete() {
		n.logger.Warn("notifier: skipping incomplete subscription", "id", sub.ID)
		return OutcomeIncomplete
	}
	bus, stop := strings.TrimSpace(sub.BusID), strings.TrimSpace(sub.StopID)
	key := sub.UserID + "|" + bus + "|" + stop
	if sub.Policy.NotifyOnce && n.wasSent(key) {
		return OutcomeSuppressed
	}

	ans := n.answerer.Answer(ctx, Query(bus, stop))
	eta, ok := ans.Trace.FirstETA()
	if !ok {
		return OutcomeNoETA
	}
	window := sub.NotifyWindow()
	if eta.ETASec < 0 || eta.ETASec > window {
		return OutcomeNotDue
	}

	ev := domain.NotificationEvent{
		ID:        n.newID(),
		UserID:    sub.UserID,
		BusID:     bus,
		StopID:    stop,
		ETASec:    eta.ETASec,
		Channel:   sub.DeliveryChannel(),
		Message:   Message(bus, stop, eta.ETASec),
		CreatedAt: n.now().UTC(),
	}
	if err := n.channel.Deliver(ctx, ev); err != nil {
		n.logger.Error("notifier: delivery failed", "user_id", ev.UserID, "channel", ev.Channel, "err", err)
		return OutcomeFailed
	}
	n.record(key, ev)
	n.logger.Info("notifier: notified", "user_id", ev.UserID, "bus_id", bus, "stop_id", stop, "eta_sec", eta.ETASec)
	return OutcomeNotified
}

func (n *Notifier) wasSent(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[key]
}

func (n *Notifier) record(key string, ev domain.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[key] = true
	n.recent = append(n.recent, ev)
	if len(n.recent) > RecentSize {
		n.recent = n.recent[len(n.recent)-RecentSize:]
	}
}

// Recent returns the last delivered events, oldest first.
func (n *Notifier) Recent() []domain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.NotificationEvent(nil), n.recent...)
}

// Query is the question asked on behalf of a subscription.
func Query(bus, stop string) string {
	return fmt.Sprintf("ETA for Bus %s to reach stop %s?", bus, stop)
}

// Message is the alert text for an ETA, in whole minutes with a minimum of one.
func Message(bus, stop string, etaSec int) string {
	minutes := max(1, etaSec/60)
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Bus %s is expected to reach stop %s in about %d %s.", bus, stop, minutes, unit)
}
