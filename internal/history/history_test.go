package history

import (
	"testing"

	"nachtplan/internal/llm"
)

func TestConversationUpsertAssistant(t *testing.T) {
	c := NewConversation()
	c.AppendUser("Plan a night in Berlin")

	c.UpsertAssistant("Hel")
	c.UpsertAssistant("Hello")
	c.UpsertAssistant("Hello world")

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[1].Role != llm.RoleAssistant || msgs[1].Content != "Hello world" {
		t.Fatalf("unexpected assistant message: %+v", msgs[1])
	}

	// a new user turn starts a fresh assistant message
	c.AppendUser("and in Hamburg?")
	c.UpsertAssistant("Sure")
	if c.Len() != 4 {
		t.Fatalf("want 4 messages, got %d", c.Len())
	}
	last, ok := c.Last()
	if !ok || last.Content != "Sure" {
		t.Fatalf("unexpected last: %+v", last)
	}
}

func TestConversationCopySemantics(t *testing.T) {
	c := NewConversation()
	c.AppendUser("hello")
	msgs := c.Messages()
	msgs[0] = llm.Message{Role: llm.RoleUser, Content: "mutated"}
	if c.Messages()[0].Content != "hello" {
		t.Fatalf("internal state mutated via returned slice")
	}
}

func TestManagerGetReset(t *testing.T) {
	m := NewManager()
	a := m.Get(1)
	a.AppendUser("foo")
	m.Get(2).AppendUser("bar")

	if m.Get(1) != a {
		t.Fatalf("expected same conversation for chat 1")
	}
	if m.Len() != 2 {
		t.Fatalf("want 2 chats, got %d", m.Len())
	}

	m.Reset(1)
	if a.Len() != 0 {
		t.Fatalf("reset did not clear chat 1")
	}
	if m.Get(2).Len() != 1 {
		t.Fatalf("reset should not affect other chats")
	}
	m.Reset(42)
	if _, ok := NewConversation().Last(); ok {
		t.Fatalf("empty conversation has no last message")
	}
}
