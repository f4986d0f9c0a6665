package consumer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"nachtplan/internal/llm"
)

// FallbackErrorMessage is shown when a failed relay answer carries no
// readable error envelope.
const FallbackErrorMessage = "Failed to reach the planner. Please try again."

// StatusError is a non-2xx answer from the relay.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned status %d: %s", e.Code, e.Message)
}

// Relay opens one chat turn against the relay and returns the response body.
type Relay interface {
	Open(ctx context.Context, messages []llm.Message) (io.ReadCloser, error)
}

type Client struct {
	url   string
	token string
	http  *http.Client
}

// NewClient targets the full relay URL. token is sent both as bearer
// credential and as apikey, which is what the hosted functions gateway expects.
func NewClient(url, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{url: url, token: token, http: httpClient}
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

func (c *Client) Open(ctx context.Context, messages []llm.Message) (io.ReadCloser, error) {
	body, err := json.Marshal(chatRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("apikey", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Message: envelopeMessage(resp.Body)}
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("relay returned no body")
	}
	return resp.Body, nil
}

func envelopeMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 16<<10))
	if err != nil {
		return FallbackErrorMessage
	}
	var env errorEnvelope
	if err := json.Unmarshal(b, &env); err != nil || strings.TrimSpace(env.Error) == "" {
		return FallbackErrorMessage
	}
	return env.Error
}
