package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/manishgpt/chat-client/internal/model/chat"
	"github.com/manishgpt/chat-client/internal/service/attachment"
	"github.com/manishgpt/chat-client/internal/stream"
)

var (
	// ErrBusy rejects a send while another one is still in flight.
	ErrBusy = errors.New("a send is already in progress")
	// ErrEmptyMessage rejects a blank send with no attachments.
	ErrEmptyMessage = errors.New("nothing to send")
)

// State of the send pipeline. Transitions only move forward through a
// send and back to idle when it resolves.
type State int

const (
	StateIdle State = iota
	StateBootstrapping
	StateSending
	StateStreaming
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateBootstrapping:
		return "bootstrapping"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Streamer posts a message and exposes the incremental reply as a raw
// byte stream.
type Streamer interface {
	StreamMessage(ctx context.Context, conversationID, content string, fileIDs []string) (io.ReadCloser, error)
}

// Notices appended to a failed reply. Partial content already received
// stays in the transcript above them.
const (
	errorNoticePrefix = "Sorry, there was an error: "
	disconnectNotice  = "Sorry, the connection was lost before the reply finished."
)

// Pipeline runs one send at a time: resolve the conversation, append the
// optimistic user message and reply placeholder, stream the reply into
// the placeholder, and clean up on failure. The idle gate is the only
// concurrency control; there is no send queue.
type Pipeline struct {
	store       *Store
	session     *Session
	streamer    Streamer
	attachments *attachment.Manager

	// OnDelta, when set, observes each chunk after it has been applied
	// to the store. It is a rendering hook and must not block.
	OnDelta func(text string)

	mu    sync.Mutex
	state State
}

// NewPipeline wires a pipeline. attachments may be nil when the client
// does not support file uploads.
func NewPipeline(store *Store, session *Session, streamer Streamer, attachments *attachment.Manager) *Pipeline {
	return &Pipeline{
		store:       store,
		session:     session,
		streamer:    streamer,
		attachments: attachments,
	}
}

// State reports the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(st State) {
	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
}

// Send submits one user message and blocks until its reply stream
// resolves. A reply that fails mid-stream is annotated in the transcript
// rather than returned as an error; Send returns an error only when the
// message could not be submitted at all or the transport broke.
func (p *Pipeline) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return ErrBusy
	}
	if text == "" && (p.attachments == nil || p.attachments.Count() == 0) {
		p.mu.Unlock()
		return ErrEmptyMessage
	}
	p.state = StateBootstrapping
	p.mu.Unlock()
	defer p.setState(StateIdle)

	// The activation this send runs under. Cleanup is skipped only when
	// this activation is gone, not when ctx carries an extra deadline.
	activation := p.session.Context()

	conversationID, err := p.session.EnsureConversation(ctx)
	if err != nil {
		// Nothing has been appended yet; the transcript is untouched.
		return err
	}

	// Attachments belong to this message from here on, even if the send
	// later fails.
	var refs []chat.FileRef
	if p.attachments != nil {
		refs = p.attachments.Consume()
	}

	if err := p.store.BeginTurn(text, refs); err != nil {
		return err
	}

	fileIDs := make([]string, 0, len(refs))
	for _, ref := range refs {
		fileIDs = append(fileIDs, ref.FileID)
	}

	p.setState(StateSending)
	body, err := p.streamer.StreamMessage(ctx, conversationID, text, fileIDs)
	if err != nil {
		// The request never reached the reply stream; drop the
		// optimistic turn entirely.
		p.store.RollbackLastTwo()
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer body.Close()

	p.setState(StateStreaming)
	chunkSeen := false
	err = stream.Consume(ctx, body, stream.Callbacks{
		OnChunk: func(text string) {
			if err := p.store.AppendChunk(text); err != nil {
				log.Printf("[chat] dropped chunk: %v", err)
				return
			}
			chunkSeen = true
			if p.OnDelta != nil {
				p.OnDelta(text)
			}
		},
		OnComplete: func(final stream.Completion) {
			if err := p.store.Finalize(final.Content); err != nil {
				log.Printf("[chat] failed to finalize reply: %v", err)
			}
		},
		OnError: func(message string) {
			if err := p.store.FailTail(errorNoticePrefix + message); err != nil {
				log.Printf("[chat] failed to mark reply as errored: %v", err)
			}
		},
	})
	if err != nil {
		if activation.Err() != nil {
			// The target switched or the client is shutting down; the
			// transcript for this target has been abandoned.
			return err
		}
		// The target is still live, so the failure must resolve the
		// turn: a defensive deadline counts as a transport failure.
		if chunkSeen {
			if failErr := p.store.FailTail(disconnectNotice); failErr != nil {
				log.Printf("[chat] failed to mark reply as errored: %v", failErr)
			}
		} else {
			p.store.RollbackLastTwo()
		}
		return fmt.Errorf("reply stream failed: %w", err)
	}
	return nil
}
