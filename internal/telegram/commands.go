package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nachtplan/internal/analytics"
	"nachtplan/internal/auth"
	"nachtplan/internal/consumer"
	"nachtplan/internal/logging"
)

const helpText = `Tell me what kind of night you are after and I will plan it from the venues and events we know about.

/reset starts a new conversation.`

func fmtAccessDenied(userID int64) string {
	return fmt.Sprintf("This planner is invite-only. Your id %d was sent to the admin.", userID)
}

func fmtAdminRequest(userID int64, username string) string {
	who := strconv.FormatInt(userID, 10)
	if username != "" {
		who += " (@" + username + ")"
	}
	return fmt.Sprintf("User %s wants to use the planner. Reply /allow %d to let them in.", who, userID)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "reset":
		if err := b.chatFor(chatID).session.Reset(); errors.Is(err, consumer.ErrBusy) {
			b.sendMessage(chatID, "Still answering, try /reset once the reply is finished.")
			return
		}
		b.sendMessage(chatID, "Conversation cleared.")
	case "allow", "revoke", "stats", "pending":
		if b.adminUserID == 0 || msg.From.ID != b.adminUserID {
			b.sendMessage(chatID, "Only the admin can do that.")
			return
		}
		b.handleAdminCommand(msg)
	default:
		b.sendMessage(chatID, "Unknown command. "+helpText)
	}
}

func (b *Bot) handleAdminCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "stats":
		b.sendMessage(chatID, b.statsReport())
		return
	case "pending":
		b.sendMessage(chatID, b.pendingReport())
		return
	}
	if b.allow == nil {
		b.sendMessage(chatID, "The allowlist is disabled.")
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil || id <= 0 {
		b.sendMessage(chatID, fmt.Sprintf("Usage: /%s <user id>", msg.Command()))
		return
	}

	if msg.Command() == "allow" {
		if err := b.allow.Allow(auth.Member{ID: id}); err != nil {
			b.sendMessage(chatID, "Could not save the allowlist: "+err.Error())
			return
		}
		if b.pending != nil {
			if err := b.pending.Remove(id); err != nil {
				logging.Warn().Err(err).Int64("user_id", id).Msg("clear access request failed")
			}
		}
		b.sendMessage(chatID, fmt.Sprintf("User %d can now use the planner.", id))
		b.sendMessage(id, "You now have access to the planner. "+helpText)
		return
	}

	removed, err := b.allow.Revoke(id)
	switch {
	case err != nil:
		b.sendMessage(chatID, "Could not save the allowlist: "+err.Error())
	case !removed:
		b.sendMessage(chatID, fmt.Sprintf("User %d was not on the allowlist.", id))
	default:
		b.sendMessage(chatID, fmt.Sprintf("User %d was removed.", id))
	}
}

func (b *Bot) statsReport() string {
	if b.recorder == nil {
		return "The turn log is disabled."
	}
	events, err := b.recorder.LoadTurns()
	if err != nil {
		return "Could not read the turn log: " + err.Error()
	}
	return analytics.AnalyzeDay(events, b.now()).Summary()
}

func (b *Bot) pendingReport() string {
	if b.pending == nil {
		return "Access requests are not tracked."
	}
	reqs := b.pending.List()
	if len(reqs) == 0 {
		return "No open access requests."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Open access requests (%d):\n", len(reqs))
	for _, r := range reqs {
		fmt.Fprintf(&sb, "- %d", r.UserID)
		if r.Username != "" {
			fmt.Fprintf(&sb, " @%s", r.Username)
		}
		fmt.Fprintf(&sb, " since %s\n", r.RequestedAt.Format("2006-01-02 15:04"))
	}
	return sb.String()
}
