package history

import (
	"sync"

	"nachtplan/internal/llm"
)

// Conversation is an append-only list of chat messages. The only in-place
// mutation allowed is growing the trailing assistant message while a reply
// streams in.
type Conversation struct {
	mu   sync.RWMutex
	msgs []llm.Message
}

func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) AppendUser(content string) {
	c.append(llm.Message{Role: llm.RoleUser, Content: content})
}

func (c *Conversation) AppendAssistant(content string) {
	c.append(llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (c *Conversation) append(msg llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

// UpsertAssistant replaces the content of the last message if it is an
// assistant message, or appends a new assistant message otherwise.
func (c *Conversation) UpsertAssistant(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.msgs); n > 0 && c.msgs[n-1].Role == llm.RoleAssistant {
		c.msgs[n-1].Content = content
		return
	}
	c.msgs = append(c.msgs, llm.Message{Role: llm.RoleAssistant, Content: content})
}

// Last returns the newest message, if any.
func (c *Conversation) Last() (llm.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.msgs) == 0 {
		return llm.Message{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msgs)
}

// Messages returns a copy of the conversation.
func (c *Conversation) Messages() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

// Manager keeps one conversation per chat.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Conversation
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*Conversation)}
}

// Get returns the chat's conversation, creating it on first use.
func (m *Manager) Get(chatID int64) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[chatID]
	if !ok {
		c = NewConversation()
		m.sessions[chatID] = c
	}
	return c
}

func (m *Manager) Reset(chatID int64) {
	m.mu.Lock()
	c, ok := m.sessions[chatID]
	m.mu.Unlock()
	if ok {
		c.Reset()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
