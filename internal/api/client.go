// Package api is the HTTP client for the conversation service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/manishgpt/chat-client/internal/model/chat"
	"github.com/manishgpt/chat-client/internal/model/persona"
)

// ErrUnauthorized reports a 401 from the service. It triggers the
// session-level re-authentication flow and is never treated as a stream
// failure.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d)", e.Status)
}

// TokenSource supplies the bearer token attached to every request. The
// client treats the token as opaque; refresh belongs to whoever
// implements this.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource for a fixed token. An empty token sends no
// Authorization header.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 64 * 1024

// Client talks to the conversation service. CRUD requests run on a
// client with a timeout; streaming requests use a separate client without
// one, since a reply stream legitimately outlives any fixed request
// timeout. Stream lifetime is bounded by the caller's context instead.
type Client struct {
	baseURL   string
	tokens    TokenSource
	requests  *http.Client
	streaming *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, tokens TokenSource, requestTimeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		tokens:    tokens,
		requests:  &http.Client{Timeout: requestTimeout},
		streaming: &http.Client{},
	}
}

// CreateConversation provisions a new conversation bound to a persona and
// returns its id.
func (c *Client) CreateConversation(ctx context.Context, personaID string) (string, error) {
	payload := map[string]string{"personaId": personaID}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("service returned a conversation without an id")
	}
	return out.ID, nil
}

// Messages loads the stored transcript of a conversation in order.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out []chat.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Personas lists the personas available to the current user.
func (c *Client) Personas(ctx context.Context) ([]persona.Persona, error) {
	var out []persona.Persona
	if err := c.doJSON(ctx, http.MethodGet, "/personas", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamMessage posts a user message and returns the raw streaming
// response body. The caller owns the body and must close it; cancelling
// ctx aborts the stream.
func (c *Client) StreamMessage(ctx context.Context, conversationID, content string, fileIDs []string) (io.ReadCloser, error) {
	if fileIDs == nil {
		fileIDs = []string{}
	}
	payload := struct {
		Content string   `json:"content"`
		FileIDs []string `json:"fileIds"`
	}{Content: content, FileIDs: fileIDs}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	endpoint := c.baseURL + "/conversations/" + url.PathEscape(conversationID) + "/messages/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.responseError(resp)
	}
	return resp.Body, nil
}

// Upload stores one file with the service and returns its reference. The
// whole file is read into the multipart body before sending.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (chat.FileRef, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return chat.FileRef{}, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return chat.FileRef{}, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := form.Close(); err != nil {
		return chat.FileRef{}, fmt.Errorf("failed to finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return chat.FileRef{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.requests.Do(req)
	if err != nil {
		return chat.FileRef{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return chat.FileRef{}, c.responseError(resp)
	}

	var ref chat.FileRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return chat.FileRef{}, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return ref, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.requests.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) responseError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return ErrUnauthorized
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed struct {
		Error string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		message = parsed.Error
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	return &Error{Status: resp.StatusCode, Message: message}
}
