package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

func TestFeedMirrorsPublishedEvents(t *testing.T) {
	nc := startTestNATS(t)
	feed, err := WatchFeed(nc, "transit.notify")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()
	nc.Flush()

	ch := NewNATSChannel(nc, "transit.notify", nil, nil)
	for i := 0; i < RecentSize+2; i++ {
		ev := domain.NotificationEvent{ID: fmt.Sprintf("e%d", i), UserID: "u1", Channel: domain.ChannelSMS, Message: "soon"}
		if err := ch.Deliver(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	nc.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for len(feed.Recent()) < RecentSize || feed.Recent()[RecentSize-1].ID != fmt.Sprintf("e%d", RecentSize+1) {
		if time.Now().After(deadline) {
			t.Fatalf("recent = %v", feed.Recent())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := feed.Recent(); len(got) != RecentSize || got[0].ID != "e2" {
		t.Errorf("recent = %v", got)
	}
}
