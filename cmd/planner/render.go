package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"nachtplan/internal/consumer"
	"nachtplan/internal/llm"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	plannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("243"))

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))
)

const thinking = "thinking…"

// renderer prints fragments as they arrive and the remainder of the reply
// once the turn ends.
type renderer struct {
	out io.Writer

	mu       sync.Mutex
	printed  strings.Builder
	thinking bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed.Reset()
	r.thinking = false
	fmt.Fprint(r.out, plannerStyle.Render("planner › "))
}

func (r *renderer) onUpdate(u consumer.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Fragment == "" {
		if u.Loading && !r.thinking && r.printed.Len() == 0 {
			fmt.Fprint(r.out, dimStyle.Render(thinking))
			r.thinking = true
		}
		return
	}
	r.clearThinking()
	fmt.Fprint(r.out, u.Fragment)
	r.printed.WriteString(u.Fragment)
}

func (r *renderer) finish(reply string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearThinking()

	rest := strings.TrimPrefix(reply, r.printed.String())
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprint(r.out, " "+dimStyle.Render("(cancelled)"))
	case err != nil && rest != "":
		fmt.Fprint(r.out, warnStyle.Render(rest))
	default:
		fmt.Fprint(r.out, rest)
	}
	fmt.Fprintln(r.out)
	r.printed.Reset()
}

func (r *renderer) clearThinking() {
	if !r.thinking {
		return
	}
	fmt.Fprint(r.out, "\r\033[K"+plannerStyle.Render("planner › "))
	r.thinking = false
}

func lastReply(s *consumer.Session) string {
	msgs := s.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != llm.RoleAssistant {
		return ""
	}
	return msgs[len(msgs)-1].Content
}
