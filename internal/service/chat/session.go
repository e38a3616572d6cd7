package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/manishgpt/chat-client/internal/notify"
	"github.com/manishgpt/chat-client/internal/route"
)

// ErrNoTarget rejects a send while neither a persona nor a conversation
// is selected.
var ErrNoTarget = errors.New("no persona or conversation selected")

// ConversationCreator provisions a conversation for a persona.
type ConversationCreator interface {
	CreateConversation(ctx context.Context, personaID string) (string, error)
}

// Session tracks the active chat target and owns lazy conversation
// creation: a persona target gets its conversation on the first send,
// never on activation, and at most once per activation.
type Session struct {
	creator  ConversationCreator
	notifier *notify.Broadcaster

	group singleflight.Group

	mu             sync.Mutex
	target         route.Target
	conversationID string
	// activation identifies the current Activate call. It keys the
	// create flight so a fresh activation never joins an in-flight
	// create started under a previous, now-cancelled one.
	activation string
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewSession creates a session. notifier may be nil when nothing listens
// for conversation lifecycle events.
func NewSession(creator ConversationCreator, notifier *notify.Broadcaster) *Session {
	return &Session{creator: creator, notifier: notifier}
}

// Activate switches the session to a new target and aborts any in-flight
// work for the previous one. The returned context governs everything
// done under this target; it is cancelled by the next Activate or by
// Close.
func (s *Session) Activate(parent context.Context, target route.Target) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.ctx, s.cancel = ctx, cancel
	s.target = target
	s.activation = uuid.NewString()
	s.conversationID = ""
	if target.Kind == route.KindConversation {
		s.conversationID = target.ConversationID
	}
	return ctx
}

// Target returns the active target.
func (s *Session) Target() route.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Context returns the context scoped to the current activation.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Close aborts any in-flight work for the current target.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// EnsureConversation resolves the active target to a concrete
// conversation id, creating one through the service the first time a
// persona-only target sends. Concurrent calls share a single create.
func (s *Session) EnsureConversation(ctx context.Context) (string, error) {
	s.mu.Lock()
	target := s.target
	cached := s.conversationID
	activation := s.activation
	s.mu.Unlock()

	switch target.Kind {
	case route.KindConversation:
		return target.ConversationID, nil
	case route.KindPersona:
	default:
		return "", ErrNoTarget
	}
	if cached != "" {
		return cached, nil
	}

	result, err, _ := s.group.Do(activation+"/"+target.PersonaID, func() (interface{}, error) {
		id, err := s.creator.CreateConversation(ctx, target.PersonaID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		// The session may have been reactivated while the create was in
		// flight; only cache the id under the activation that asked.
		if s.activation == activation {
			s.conversationID = id
		}
		s.mu.Unlock()

		if s.notifier != nil {
			s.notifier.Publish(notify.Event{
				Type:           notify.ConversationCreated,
				PersonaID:      target.PersonaID,
				ConversationID: id,
			})
		}
		return id, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return result.(string), nil
}
