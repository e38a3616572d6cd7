// Package notify fans out conversation lifecycle events to interested
// components without a global event bus.
package notify

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// EventType discriminates conversation lifecycle notifications.
type EventType string

const (
	ConversationCreated EventType = "conversation_created"
	ConversationDeleted EventType = "conversation_deleted"
)

// Event tells sibling components, such as a conversation list or the
// location bar, that a conversation changed.
type Event struct {
	Type           EventType
	PersonaID      string
	ConversationID string
}

// subscriberBuffer is the per-subscriber channel capacity. Publish never
// blocks; a subscriber that falls this far behind loses events.
const subscriberBuffer = 16

// Broadcaster is an in-memory fan-out for Events.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan Event)}
}

// Subscribe registers a listener and returns its channel together with a
// subscription id. The subscription is removed automatically when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, string) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, id
	}
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(id)
	}()

	return ch, id
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every subscriber. Delivery is best
// effort: a full subscriber channel drops the event rather than stalling
// the publisher.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[notify] dropped %s event for slow subscriber %s", ev.Type, id)
		}
	}
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
