package llm

import (
	"context"
	"io"

	"github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Streamer opens a streaming completion and returns the raw upstream body.
// The caller owns the returned reader and must close it.
type Streamer interface {
	Stream(ctx context.Context, messages []Message) (io.ReadCloser, error)
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
