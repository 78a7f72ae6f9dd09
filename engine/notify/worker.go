package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/pkg/natsutil"
)

// WorkerQueue is the queue group shared by notification workers.
const WorkerQueue = "transit-notify-workers"

// Worker consumes published notification events and hands each one to a
// final delivery channel.
type Worker struct {
	nc      *nats.Conn
	subject string
	sink    Channel
	logger  *slog.Logger
}

// NewWorker subscribes to {prefix}.> once Run is called.
func NewWorker(nc *nats.Conn, prefix string, sink Channel, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{nc: nc, subject: prefix + ".>", sink: sink, logger: logger}
}

// Run processes events until ctx is done, then drains the subscription.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := natsutil.QueueSubscribe(w.nc, w.subject, WorkerQueue, w.handle)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", w.subject, err)
	}
	w.logger.Info("notification worker listening", "subject", w.subject, "queue", WorkerQueue)
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		w.logger.Warn("notify: drain", "err", err)
	}
	return ctx.Err()
}

func (w *Worker) handle(ctx context.Context, ev domain.NotificationEvent) {
	if ev.UserID == "" || ev.Message == "" {
		w.logger.Warn("notify: dropping event without user or message", "id", ev.ID)
		return
	}
	if err := w.sink.Deliver(ctx, ev); err != nil {
		w.logger.Error("notify: final delivery failed", "id", ev.ID, "channel", ev.Channel, "err", err)
	}
}
