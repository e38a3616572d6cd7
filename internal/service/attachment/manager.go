// Package attachment uploads files ahead of send time and buffers their
// references until a send consumes them.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/manishgpt/chat-client/internal/model/chat"
)

// ErrFileTooLarge rejects a file before any upload is attempted. It stays
// at the attachment boundary and never reaches the transcript.
var ErrFileTooLarge = errors.New("file exceeds the upload size limit")

// Uploader stores a file with the conversation service and returns its
// reference.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (chat.FileRef, error)
}

// Upload is a pending attachment waiting for the next send. ID is local
// to this client and only used to remove the entry before sending.
type Upload struct {
	ID  string
	Ref chat.FileRef
}

// Manager validates and uploads files, then parks their references until
// the next send claims them.
type Manager struct {
	uploader Uploader
	maxBytes int64

	mu      sync.Mutex
	pending []Upload
}

// NewManager creates a manager enforcing maxBytes per file. A
// non-positive limit disables the local check.
func NewManager(uploader Uploader, maxBytes int64) *Manager {
	return &Manager{uploader: uploader, maxBytes: maxBytes}
}

// Add uploads one file of the given size and buffers its reference.
// Oversized files are rejected without touching the network.
func (m *Manager) Add(ctx context.Context, filename string, r io.Reader, size int64) (Upload, error) {
	if m.maxBytes > 0 && size > m.maxBytes {
		return Upload{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, filename, size, m.maxBytes)
	}

	ref, err := m.uploader.Upload(ctx, filename, r)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	entry := Upload{ID: uuid.NewString(), Ref: ref}
	m.mu.Lock()
	m.pending = append(m.pending, entry)
	m.mu.Unlock()
	return entry, nil
}

// Pending returns a copy of the buffered uploads in the order they were
// added.
func (m *Manager) Pending() []Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Upload(nil), m.pending...)
}

// Count reports the number of buffered uploads.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Remove drops one pending upload by its local id and reports whether it
// was present.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, entry := range m.pending {
		if entry.ID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Consume returns the buffered references and clears the buffer.
// Ownership transfers to the message being sent; attachments never carry
// over to a later send.
func (m *Manager) Consume() []chat.FileRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs := make([]chat.FileRef, 0, len(m.pending))
	for _, entry := range m.pending {
		refs = append(refs, entry.Ref)
	}
	m.pending = nil
	return refs
}
