// Package stream decodes the conversation service's streaming reply
// format into ordered callbacks.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"

	"github.com/manishgpt/chat-client/pkg/sse"
)

// Completion is the payload of a terminal complete event. Content is the
// authoritative full reply; empty means keep the accumulated chunk text.
type Completion struct {
	Content string `json:"content"`
}

// Callbacks receive decoded events in stream order. Exactly one of
// OnComplete and OnError fires per successfully consumed stream, always
// after the last OnChunk.
type Callbacks struct {
	OnChunk    func(text string)
	OnComplete func(final Completion)
	OnError    func(message string)
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Scanner buffer bounds. A single frame line never legitimately comes
// close to a megabyte.
const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024
)

const unterminatedMessage = "the stream ended before the reply finished"

// Consume reads body until a terminal event and dispatches each frame
// through cb. Frames that fail to parse are logged and skipped; decoding
// depends only on the byte sequence, never on how reads were chunked.
//
// Consume returns nil once a terminal callback has fired, including the
// synthetic OnError for a stream that closes without a terminal event. It
// returns an error only when the transport failed or ctx was cancelled
// before the tail could be resolved; in that case no terminal callback
// has run and the caller owns the cleanup.
func Consume(ctx context.Context, body io.Reader, cb Callbacks) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		payload, ok := strings.CutPrefix(line, sse.Prefix)
		if !ok {
			continue
		}

		var ev event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Printf("[stream] skipping malformed frame: %v", err)
			continue
		}

		switch ev.Type {
		case sse.EventUserMessage:
			// Acknowledgement of the sent message; the optimistic copy is
			// already in the transcript.
		case sse.EventChunk:
			var text string
			if err := json.Unmarshal(ev.Data, &text); err != nil {
				log.Printf("[stream] skipping malformed chunk payload: %v", err)
				continue
			}
			if cb.OnChunk != nil {
				cb.OnChunk(text)
			}
		case sse.EventComplete:
			var final Completion
			if err := json.Unmarshal(ev.Data, &final); err != nil {
				log.Printf("[stream] skipping malformed completion payload: %v", err)
				continue
			}
			if cb.OnComplete != nil {
				cb.OnComplete(final)
			}
			return nil
		case sse.EventError:
			var message string
			if err := json.Unmarshal(ev.Data, &message); err != nil {
				message = "the assistant reported an error"
			}
			if cb.OnError != nil {
				cb.OnError(message)
			}
			return nil
		default:
			log.Printf("[stream] ignoring unknown event type %q", ev.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// EOF without a terminal event. The tail must not stay streaming.
	if cb.OnError != nil {
		cb.OnError(unterminatedMessage)
	}
	return nil
}
