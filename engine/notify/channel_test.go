package notify

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type chanSink chan domain.NotificationEvent

func (c chanSink) Deliver(_ context.Context, ev domain.NotificationEvent) error {
	c <- ev
	return nil
}

func TestNATSChannelToWorker(t *testing.T) {
	nc := startTestNATS(t)
	sink := make(chanSink, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(nc, "transit.notify", sink, nil)
	go w.Run(ctx)

	// Wait for the worker's subscription to reach the server.
	deadline := time.Now().Add(2 * time.Second)
	for nc.NumSubscriptions() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	nc.Flush()

	ch := NewNATSChannel(nc, "transit.notify", nil, nil)
	ev := domain.NotificationEvent{ID: "e1", UserID: "u1", BusID: "B1", StopID: "S1", ETASec: 240, Channel: domain.ChannelSMS, Message: "soon"}
	if got := ch.Subject(ev); got != "transit.notify.sms" {
		t.Errorf("subject = %s", got)
	}
	if err := ch.Deliver(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	// Events without a user are dropped by the worker.
	ch.Deliver(context.Background(), domain.NotificationEvent{ID: "e2", Channel: domain.ChannelConsole, Message: "x"})

	select {
	case got := <-sink:
		if got.ID != "e1" || got.ETASec != 240 || got.Channel != domain.ChannelSMS {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not receive the event")
	}
	select {
	case got := <-sink:
		t.Errorf("unexpected delivery %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSChannelFallsBack(t *testing.T) {
	nc := startTestNATS(t)
	nc.Close()

	fallback := &recorder{}
	ch := NewNATSChannel(nc, "transit.notify", fallback, nil)
	if err := ch.Deliver(context.Background(), domain.NotificationEvent{ID: "e1", UserID: "u1", Channel: domain.ChannelConsole}); err != nil {
		t.Fatal(err)
	}
	if fallback.len() != 1 {
		t.Error("fallback channel not used")
	}

	if err := NewNATSChannel(nc, "transit.notify", nil, nil).Deliver(context.Background(), domain.NotificationEvent{}); err == nil {
		t.Error("expected error without fallback")
	}
}

func TestConsoleChannel(t *testing.T) {
	if err := NewConsoleChannel(nil).Deliver(context.Background(), domain.NotificationEvent{ID: "e1"}); err != nil {
		t.Fatal(err)
	}
}
