package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/manishgpt/chat-client/internal/notify"
	"github.com/manishgpt/chat-client/internal/route"
)

type stubCreator struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (c *stubCreator) CreateConversation(ctx context.Context, personaID string) (string, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return "", c.err
	}
	return fmt.Sprintf("conv-%s-%d", personaID, n), nil
}

func (c *stubCreator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestEnsureConversationUsesExistingID(t *testing.T) {
	creator := &stubCreator{}
	s := NewSession(creator, nil)
	s.Activate(context.Background(), route.Resolve("c-77"))

	id, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}
	if id != "c-77" {
		t.Errorf("expected existing conversation id, got %q", id)
	}
	if creator.callCount() != 0 {
		t.Errorf("expected no create call, got %d", creator.callCount())
	}
}

func TestEnsureConversationCreatesOncePerActivation(t *testing.T) {
	creator := &stubCreator{}
	s := NewSession(creator, nil)
	s.Activate(context.Background(), route.Resolve("persona/socrates"))

	first, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("first EnsureConversation failed: %v", err)
	}
	second, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("second EnsureConversation failed: %v", err)
	}

	if first != second {
		t.Errorf("expected the same conversation id, got %q and %q", first, second)
	}
	if creator.callCount() != 1 {
		t.Errorf("expected exactly one create call, got %d", creator.callCount())
	}
}

func TestEnsureConversationConcurrentCallsShareCreate(t *testing.T) {
	creator := &stubCreator{delay: 50 * time.Millisecond}
	s := NewSession(creator, nil)
	s.Activate(context.Background(), route.Resolve("persona/socrates"))

	const callers = 4
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = s.EnsureConversation(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d got %q, caller 0 got %q", i, ids[i], ids[0])
		}
	}
	if creator.callCount() != 1 {
		t.Errorf("expected exactly one create call, got %d", creator.callCount())
	}
}

func TestEnsureConversationNoTarget(t *testing.T) {
	s := NewSession(&stubCreator{}, nil)

	if _, err := s.EnsureConversation(context.Background()); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget on a fresh session, got %v", err)
	}

	s.Activate(context.Background(), route.Resolve(""))
	if _, err := s.EnsureConversation(context.Background()); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget after an empty activation, got %v", err)
	}
}

func TestEnsureConversationSurfacesCreateError(t *testing.T) {
	createErr := errors.New("service down")
	s := NewSession(&stubCreator{err: createErr}, nil)
	s.Activate(context.Background(), route.Resolve("persona/socrates"))

	if _, err := s.EnsureConversation(context.Background()); !errors.Is(err, createErr) {
		t.Errorf("expected the create error to surface, got %v", err)
	}
}

func TestEnsureConversationPublishesCreation(t *testing.T) {
	notifier := notify.NewBroadcaster()
	defer notifier.Close()
	events, _ := notifier.Subscribe(context.Background())

	s := NewSession(&stubCreator{}, notifier)
	s.Activate(context.Background(), route.Resolve("persona/socrates"))

	id, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != notify.ConversationCreated {
			t.Errorf("unexpected event type %q", ev.Type)
		}
		if ev.PersonaID != "socrates" || ev.ConversationID != id {
			t.Errorf("unexpected event payload: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the creation event")
	}
}

func TestActivateCancelsPreviousContext(t *testing.T) {
	s := NewSession(&stubCreator{}, nil)

	first := s.Activate(context.Background(), route.Resolve("persona/socrates"))
	second := s.Activate(context.Background(), route.Resolve("c-1"))

	if !errors.Is(first.Err(), context.Canceled) {
		t.Error("expected the first activation context to be cancelled")
	}
	if second.Err() != nil {
		t.Errorf("second activation context should be live, got %v", second.Err())
	}

	s.Close()
	if !errors.Is(second.Err(), context.Canceled) {
		t.Error("expected Close to cancel the active context")
	}
}

func TestReactivationDoesNotJoinStaleCreate(t *testing.T) {
	creator := &stubCreator{delay: 100 * time.Millisecond}
	s := NewSession(creator, nil)
	first := s.Activate(context.Background(), route.Resolve("persona/socrates"))

	staleDone := make(chan struct{})
	go func() {
		defer close(staleDone)
		s.EnsureConversation(first)
	}()

	deadline := time.Now().Add(time.Second)
	for creator.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if creator.callCount() == 0 {
		t.Fatal("stale create never started")
	}

	// Navigate away and back while the first create is still in flight.
	s.Activate(context.Background(), route.Resolve("c-9"))
	s.Activate(context.Background(), route.Resolve("persona/socrates"))

	id, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a conversation id")
	}

	<-staleDone
	if creator.callCount() != 2 {
		t.Errorf("expected the fresh activation to run its own create, got %d calls", creator.callCount())
	}
}

func TestReactivationForgetsCachedConversation(t *testing.T) {
	creator := &stubCreator{}
	s := NewSession(creator, nil)

	s.Activate(context.Background(), route.Resolve("persona/socrates"))
	first, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}

	// Navigating away and back to the same persona starts fresh.
	s.Activate(context.Background(), route.Resolve("persona/socrates"))
	second, err := s.EnsureConversation(context.Background())
	if err != nil {
		t.Fatalf("EnsureConversation failed: %v", err)
	}

	if first == second {
		t.Errorf("expected a new conversation after reactivation, got %q twice", first)
	}
	if creator.callCount() != 2 {
		t.Errorf("expected two create calls, got %d", creator.callCount())
	}
}
