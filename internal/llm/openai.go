package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned when the gateway key is absent at call time.
var ErrMissingAPIKey = errors.New("GATEWAY_API_KEY is not configured")

// maxErrorBody bounds how much of a failed upstream body is kept for logs.
const maxErrorBody = 8 << 10

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.Code)
}

type GatewayConfig struct {
	URL      string
	APIKey   string
	Model    string
	Referrer string
	Title    string
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Gateway talks to an OpenAI-compatible chat completions endpoint and hands
// back the streaming body untouched.
type Gateway struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewGateway(cfg GatewayConfig) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	// Inject optional headers (useful for OpenRouter)
	if cfg.Referrer != "" || cfg.Title != "" {
		h := http.Header{}
		if cfg.Referrer != "" {
			h.Set("HTTP-Referer", cfg.Referrer)
		}
		if cfg.Title != "" {
			h.Set("X-Title", cfg.Title)
		}
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *client
		wrapped.Transport = headerTransport{rt: base, headers: h}
		client = &wrapped
	}
	return &Gateway{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: client,
	}
}

func (g *Gateway) Configured() bool { return g.apiKey != "" }

func (g *Gateway) Model() string { return g.model }

// Stream issues exactly one request; there is no retry.
func (g *Gateway) Stream(ctx context.Context, messages []Message) (io.ReadCloser, error) {
	if !g.Configured() {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: toOpenAI(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}
