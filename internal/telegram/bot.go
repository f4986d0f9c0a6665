// Package telegram is the chat front-end of the planner. Each Telegram chat
// owns one consumer session; replies are streamed by editing one message.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nachtplan/internal/auth"
	"nachtplan/internal/consumer"
	"nachtplan/internal/history"
	"nachtplan/internal/logging"
	"nachtplan/internal/pending"
	"nachtplan/internal/storage"
)

const (
	busyText     = "Still working on your previous message, one moment."
	nonTextText  = "Send me a text message describing the night you have in mind."
	noAnswerText = "The planner finished without an answer. Please try rephrasing."
)

type Options struct {
	Relay consumer.Relay
	// Allowlist nil lets everyone in.
	Allowlist *auth.Allowlist
	// Pending nil notifies the admin on every unauthorized message.
	Pending *pending.Queue
	// Recorder nil disables the turn log and /stats.
	Recorder     storage.Recorder
	AdminUserID  int64
	EditInterval time.Duration
}

type Bot struct {
	s            sender
	relay        consumer.Relay
	allow        *auth.Allowlist
	pending      *pending.Queue
	recorder     storage.Recorder
	adminUserID  int64
	editInterval time.Duration
	history      *history.Manager
	now          func() time.Time

	mu    sync.Mutex
	chats map[int64]*chat

	wg sync.WaitGroup
}

type chat struct {
	session *consumer.Session
	turn    sync.Mutex

	mu   sync.Mutex
	live *liveReply
}

func (c *chat) onUpdate(u consumer.Update) {
	c.mu.Lock()
	live := c.live
	c.mu.Unlock()
	if live != nil {
		live.update(u)
	}
}

func (c *chat) setLive(l *liveReply) {
	c.mu.Lock()
	c.live = l
	c.mu.Unlock()
}

func New(api *tgbotapi.BotAPI, opts Options) *Bot {
	return newBot(botAPISender{api: api}, opts)
}

func newBot(s sender, opts Options) *Bot {
	return &Bot{
		s:            s,
		relay:        opts.Relay,
		allow:        opts.Allowlist,
		pending:      opts.Pending,
		recorder:     opts.Recorder,
		adminUserID:  opts.AdminUserID,
		editInterval: opts.EditInterval,
		history:      history.NewManager(),
		now:          time.Now,
		chats:        make(map[int64]*chat),
	}
}

// Run handles updates until ctx is done or the channel closes, then waits
// for running turns to end.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(m *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleMessage(ctx, m)
			}(u.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if !b.isAllowed(msg.From.ID) {
		logging.Warn().Int64("user_id", msg.From.ID).Str("username", msg.From.UserName).Msg("unauthorized access attempt")
		b.sendMessage(msg.Chat.ID, fmtAccessDenied(msg.From.ID))
		b.requestAccess(msg.From.ID, msg.From.UserName)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	b.runTurn(ctx, msg)
}

func (b *Bot) isAllowed(userID int64) bool {
	if b.adminUserID != 0 && userID == b.adminUserID {
		return true
	}
	return b.allow == nil || b.allow.IsAllowed(userID)
}

func (b *Bot) chatFor(chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.chats[chatID]; ok {
		return c
	}
	c := &chat{}
	c.session = consumer.NewSession(b.relay, b.history.Get(chatID), consumer.WithListener(c.onUpdate))
	b.chats[chatID] = c
	return c
}

func (b *Bot) runTurn(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	c := b.chatFor(chatID)
	if !c.turn.TryLock() {
		b.sendMessage(chatID, busyText)
		return
	}
	defer c.turn.Unlock()

	live := newLiveReply(b.s, chatID, b.editInterval)
	c.setLive(live)
	defer c.setLive(nil)

	if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		logging.Debug().Err(err).Int64("chat_id", chatID).Msg("chat action failed")
	}

	started := b.now()
	err := c.session.Submit(ctx, msg.Text)
	switch {
	case errors.Is(err, consumer.ErrEmptyInput):
		b.sendMessage(chatID, nonTextText)
		return
	case errors.Is(err, consumer.ErrBusy):
		b.sendMessage(chatID, busyText)
		return
	}

	reply := lastAssistant(c.session.Messages())
	if reply == "" && ctx.Err() == nil {
		live.finish(noAnswerText)
	} else {
		live.finish(reply)
	}

	outcome := storage.OutcomeOK
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = storage.OutcomeCancelled
	default:
		outcome = storage.OutcomeError
	}
	elapsed := b.now().Sub(started)
	logging.Info().
		Int64("chat_id", chatID).
		Int64("user_id", msg.From.ID).
		Str("outcome", outcome).
		Int("reply_chars", len(reply)).
		Dur("elapsed", elapsed).
		Msg("planner turn finished")

	if b.recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:         started,
		ChatID:            chatID,
		UserID:            msg.From.ID,
		UserMessage:       msg.Text,
		AssistantResponse: reply,
		Outcome:           outcome,
		DurationMS:        elapsed.Milliseconds(),
	}
	if err := b.recorder.AppendTurn(ev); err != nil {
		logging.Error().Err(err).Msg("record turn failed")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.s.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logging.Warn().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

// requestAccess queues the user and tells the admin about first requests only.
func (b *Bot) requestAccess(userID int64, username string) {
	if b.pending != nil {
		added, err := b.pending.Add(pending.Request{UserID: userID, Username: username, RequestedAt: b.now().UTC()})
		if err != nil {
			logging.Error().Err(err).Int64("user_id", userID).Msg("queue access request failed")
		}
		if !added {
			return
		}
	}
	if b.adminUserID == 0 {
		return
	}
	b.sendMessage(b.adminUserID, fmtAdminRequest(userID, username))
}

// SendDailyReport sends today's usage summary to the admin.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	if b.adminUserID == 0 {
		return errors.New("no admin configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.s.Send(tgbotapi.NewMessage(b.adminUserID, b.statsReport())); err != nil {
		return fmt.Errorf("send daily report: %w", err)
	}
	return nil
}
