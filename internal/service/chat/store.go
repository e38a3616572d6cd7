// Package chat holds the client-side state of the active conversation
// and orchestrates sending messages through the conversation service.
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manishgpt/chat-client/internal/model/chat"
)

var (
	// ErrStreamingTail rejects stacking a second streaming reply.
	ErrStreamingTail = errors.New("a reply is already streaming")
	// ErrNoStreamingTail rejects tail updates when nothing is streaming.
	ErrNoStreamingTail = errors.New("no streaming reply to update")
)

// Store holds the ordered transcript of the active conversation.
// Messages are treated as immutable values: tail updates replace the
// last element with a fresh copy, so a renderer comparing message
// identity sees every change.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load replaces the transcript wholesale with history fetched for an
// existing conversation.
func (s *Store) Load(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]chat.Message(nil), messages...)
}

// Reset clears the transcript.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// AppendUser appends a finalized user message and returns it.
func (s *Store) AppendUser(content string, attachments []chat.FileRef) chat.Message {
	msg := chat.Message{
		ID:          uuid.NewString(),
		Role:        chat.RoleUser,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
		Attachments: append([]chat.FileRef(nil), attachments...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg
}

// AppendPlaceholder appends the empty assistant reply that will receive
// streamed chunks. Only one streaming tail may exist at a time.
func (s *Store) AppendPlaceholder() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 && s.messages[n-1].IsStreaming {
		return ErrStreamingTail
	}
	s.messages = append(s.messages, chat.Message{
		ID:          uuid.NewString(),
		Role:        chat.RoleAssistant,
		IsStreaming: true,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

// BeginTurn appends the optimistic user message together with its reply
// placeholder in one step. It refuses to start a turn while a reply is
// still streaming and leaves the transcript untouched in that case.
func (s *Store) BeginTurn(content string, attachments []chat.FileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 && s.messages[n-1].IsStreaming {
		return ErrStreamingTail
	}
	s.messages = append(s.messages,
		chat.Message{
			ID:          uuid.NewString(),
			Role:        chat.RoleUser,
			Content:     content,
			CreatedAt:   time.Now().UTC(),
			Attachments: append([]chat.FileRef(nil), attachments...),
		},
		chat.Message{
			ID:          uuid.NewString(),
			Role:        chat.RoleAssistant,
			IsStreaming: true,
			CreatedAt:   time.Now().UTC(),
		},
	)
	return nil
}

// AppendChunk adds decoded reply text to the streaming tail.
func (s *Store) AppendChunk(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail, ok := s.streamingTail()
	if !ok {
		return ErrNoStreamingTail
	}
	next := tail
	next.Content += text
	s.messages[len(s.messages)-1] = next
	return nil
}

// Finalize closes the streaming tail with the authoritative reply
// content. Empty content keeps the accumulated chunk text.
func (s *Store) Finalize(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail, ok := s.streamingTail()
	if !ok {
		return ErrNoStreamingTail
	}
	next := tail
	if content != "" {
		next.Content = content
	}
	next.IsStreaming = false
	s.messages[len(s.messages)-1] = next
	return nil
}

// FailTail closes the streaming tail with an error notice, keeping any
// partial content already received.
func (s *Store) FailTail(notice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail, ok := s.streamingTail()
	if !ok {
		return ErrNoStreamingTail
	}
	next := tail
	if next.Content == "" {
		next.Content = notice
	} else {
		next.Content += "\n\n" + notice
	}
	next.IsStreaming = false
	s.messages[len(s.messages)-1] = next
	return nil
}

// RollbackLastTwo drops the optimistic user message and its placeholder
// after a send that produced no reply bytes at all.
func (s *Store) RollbackLastTwo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) < 2 {
		s.messages = nil
		return
	}
	s.messages = s.messages[:len(s.messages)-2]
}

// Messages returns a copy of the transcript.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.messages...)
}

// Len reports the number of messages in the transcript.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// streamingTail returns the last message if it is the streaming reply.
// Callers must hold s.mu.
func (s *Store) streamingTail() (chat.Message, bool) {
	n := len(s.messages)
	if n == 0 || !s.messages[n-1].IsStreaming {
		return chat.Message{}, false
	}
	return s.messages[n-1], true
}
