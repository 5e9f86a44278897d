package zmqpub

import (
	"context"
	"testing"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/events"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
)

func TestPublishSubscribe(t *testing.T) {
	const endpoint = "inproc://betwatch-events-test"

	pub, err := NewPublisher(endpoint)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, endpoint, events.KindNotification)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	st := hud.GameStatus{IsOpen: true, TimeRemaining: 60, Region: "TR"}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	// PUB drops messages until the subscription propagates, so keep sending.
	for {
		select {
		case ev := <-sub:
			if ev.Kind != events.KindNotification {
				t.Fatalf("got kind %q through notification filter", ev.Kind)
			}
			if ev.Status == nil || *ev.Status != st {
				t.Errorf("Status = %+v", ev.Status)
			}
			return
		case <-ticker.C:
			if err := pub.Publish(events.Observation(1, time.Now(), st, "")); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if err := pub.Publish(events.Notification(2, time.Now(), st, "open")); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	pub, err := NewPublisher("inproc://betwatch-closed-test")
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pub.Publish(events.Stream(1, time.Now(), "")); err == nil {
		t.Error("expected error after Close")
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
