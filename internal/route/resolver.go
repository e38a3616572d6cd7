// Package route maps navigation identifiers to chat targets.
package route

import "strings"

// Kind discriminates what a navigation identifier resolved to.
type Kind string

const (
	KindNone         Kind = "none"
	KindPersona      Kind = "persona"
	KindConversation Kind = "conversation"
)

// personaPrefix is the reserved path segment for persona-scoped routes.
// A bare conversation id can never collide with it.
const personaPrefix = "persona/"

// Target is the resolved intent of the current navigation: start fresh
// with a persona, resume an existing conversation, or neither.
type Target struct {
	Kind           Kind
	PersonaID      string
	ConversationID string
}

// None reports whether the target selects neither a persona nor a
// conversation.
func (t Target) None() bool {
	return t.Kind == KindNone || t.Kind == ""
}

// Resolve maps a navigation identifier to a Target. The identifier is the
// route remainder below the chat mount point: empty selects nothing,
// "persona/<id>" selects a persona with no conversation yet, and anything
// else is treated as a conversation id. Resolve is pure; callers
// re-evaluate it on every navigation change.
func Resolve(identifier string) Target {
	id := strings.Trim(strings.TrimSpace(identifier), "/")
	if id == "" || id == "persona" {
		return Target{Kind: KindNone}
	}
	if rest, ok := strings.CutPrefix(id, personaPrefix); ok {
		rest = strings.Trim(rest, "/")
		if rest == "" {
			return Target{Kind: KindNone}
		}
		return Target{Kind: KindPersona, PersonaID: rest}
	}
	return Target{Kind: KindConversation, ConversationID: id}
}
