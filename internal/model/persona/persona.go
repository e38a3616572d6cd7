// Package persona describes the assistant identities a conversation can
// be created against.
package persona

// Persona captures the persona attributes the conversation service
// exposes to clients.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Greeting    string `json:"greeting,omitempty"`
}
