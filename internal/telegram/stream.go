package telegram

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"nachtplan/internal/consumer"
	"nachtplan/internal/llm"
	"nachtplan/internal/logging"
)

// maxMessageRunes stays below Telegram's 4096 character limit.
const maxMessageRunes = 4000

// liveReply mirrors the assistant message of one turn into a single
// Telegram message: the first fragment sends it, later fragments edit it at
// most once per interval, and finish always writes the final text.
type liveReply struct {
	s       sender
	chatID  int64
	limiter *rate.Limiter

	mu    sync.Mutex
	msgID int
	shown string
}

func newLiveReply(s sender, chatID int64, every time.Duration) *liveReply {
	return &liveReply{s: s, chatID: chatID, limiter: rate.NewLimiter(rate.Every(every), 1)}
}

func (l *liveReply) update(u consumer.Update) {
	if u.Fragment == "" {
		return
	}
	text := lastAssistant(u.Messages)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.msgID == 0 {
		l.limiter.Allow()
		l.sendLocked(text)
		return
	}
	if l.limiter.Allow() {
		l.editLocked(text)
	}
}

func (l *liveReply) finish(text string) {
	if text == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.msgID == 0 {
		l.sendLocked(text)
		return
	}
	l.editLocked(text)
}

func (l *liveReply) sendLocked(text string) {
	text = clip(text)
	m, err := l.s.Send(tgbotapi.NewMessage(l.chatID, text))
	if err != nil {
		logging.Warn().Err(err).Int64("chat_id", l.chatID).Msg("send reply failed")
		return
	}
	l.msgID = m.MessageID
	l.shown = text
}

func (l *liveReply) editLocked(text string) {
	text = clip(text)
	if text == l.shown {
		return
	}
	if _, err := l.s.Send(tgbotapi.NewEditMessageText(l.chatID, l.msgID, text)); err != nil {
		logging.Warn().Err(err).Int64("chat_id", l.chatID).Int("message_id", l.msgID).Msg("edit reply failed")
		return
	}
	l.shown = text
}

func lastAssistant(msgs []llm.Message) string {
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != llm.RoleAssistant {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

func clip(text string) string {
	r := []rune(text)
	if len(r) <= maxMessageRunes {
		return text
	}
	return string(r[:maxMessageRunes-1]) + "…"
}
