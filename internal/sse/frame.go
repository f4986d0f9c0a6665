package sse

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
)

const (
	DataPrefix = "data: "
	Done       = "[DONE]"
)

type Kind int

const (
	// Skip is a line that carries nothing: comments, blank lines, other
	// fields, or an envelope without delta content.
	Skip Kind = iota
	Fragment
	Sentinel
	// Unparseable is a data line whose payload is not valid JSON. Frames can
	// straddle chunk boundaries upstream, so callers drop these silently.
	Unparseable
)

func (k Kind) String() string {
	switch k {
	case Fragment:
		return "fragment"
	case Sentinel:
		return "sentinel"
	case Unparseable:
		return "unparseable"
	default:
		return "skip"
	}
}

type Frame struct {
	Kind Kind
	Text string
}

// ParseLine classifies one framed line.
func ParseLine(line string) Frame {
	if !strings.HasPrefix(line, DataPrefix) {
		return Frame{Kind: Skip}
	}
	payload := strings.TrimSpace(line[len(DataPrefix):])
	if payload == Done {
		return Frame{Kind: Sentinel}
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Frame{Kind: Unparseable}
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return Frame{Kind: Skip}
	}
	return Frame{Kind: Fragment, Text: chunk.Choices[0].Delta.Content}
}

// FormatData renders a payload as a single data line, as an upstream would.
func FormatData(payload string) string {
	return DataPrefix + payload + "\n"
}
