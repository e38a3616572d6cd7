package notify

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	first, _ := b.Subscribe(context.Background())
	second, _ := b.Subscribe(context.Background())

	ev := Event{Type: ConversationCreated, PersonaID: "ada", ConversationID: "c-1"}
	b.Publish(ev)

	for _, ch := range []<-chan Event{first, second} {
		select {
		case got := <-ch:
			if got != ev {
				t.Errorf("expected %+v, got %+v", ev, got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch, id := b.Subscribe(context.Background())
	b.Unsubscribe(id)

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: ConversationDeleted, ConversationID: "c-2"})
}

func TestSubscribeContextCancellation(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription not removed after context cancellation")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	_, _ = b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Event{Type: ConversationCreated, ConversationID: "c-3"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, _ := b.Subscribe(context.Background())
	b.Close()

	if _, open := <-ch; open {
		t.Error("expected subscriber channel closed after Close")
	}

	b.Publish(Event{Type: ConversationCreated})
	b.Close()
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster()
	b.Close()

	ch, _ := b.Subscribe(context.Background())
	if _, open := <-ch; open {
		t.Error("expected a closed channel when subscribing after Close")
	}
}
