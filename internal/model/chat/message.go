package chat

import "time"

// Roles a transcript message can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FileRef identifies a file stored by the conversation service and
// attached to a message.
type FileRef struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
}

// Message is a single turn in a conversation. IsStreaming marks the one
// assistant reply currently being received; it can only ever be true on
// the last message of a transcript.
type Message struct {
	ID          string    `json:"id,omitempty"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	IsStreaming bool      `json:"isStreaming,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	Attachments []FileRef `json:"attachments,omitempty"`
}
