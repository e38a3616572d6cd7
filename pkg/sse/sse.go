// Package sse implements the frame format used by the conversation
// service's streaming endpoint. Every frame is a single "data: <json>"
// line followed by a blank line.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// Prefix marks a data line within the stream.
const Prefix = "data: "

// Event types carried in a frame's "type" field.
const (
	EventUserMessage = "user_message"
	EventChunk       = "chunk"
	EventComplete    = "complete"
	EventError       = "error"
)

// WriteFrame marshals payload as JSON and writes it as one frame.
func WriteFrame(w io.Writer, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal frame payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s%s\n\n", Prefix, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
