package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayStreamPassesBodyThrough(t *testing.T) {
	const stream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"

	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.org", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "nachtplan", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, stream)
	}))
	defer srv.Close()

	gw := NewGateway(GatewayConfig{URL: srv.URL, APIKey: "k", Model: "m", Referrer: "https://example.org", Title: "nachtplan"})
	body, err := gw.Stream(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "Plan a night in Berlin"},
	})
	require.NoError(t, err)
	defer body.Close()

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, stream, string(b))

	assert.True(t, got.Stream)
	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Plan a night in Berlin", got.Messages[1].Content)
}

func TestGatewayStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"slow down"}`)
	}))
	defer srv.Close()

	gw := NewGateway(GatewayConfig{URL: srv.URL, APIKey: "k"})
	_, err := gw.Stream(context.Background(), nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Contains(t, se.Body, "slow down")
}

func TestGatewayMissingKey(t *testing.T) {
	gw := NewGateway(GatewayConfig{URL: "http://127.0.0.1:1"})
	assert.False(t, gw.Configured())
	_, err := gw.Stream(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
