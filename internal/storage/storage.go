// Package storage keeps a transcript of planner turns handled by the bot.
package storage

import "time"

// Turn outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Event is one finished planner turn. Events are appended in the order turns
// finish.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	ChatID            int64     `json:"chat_id"`
	UserID            int64     `json:"user_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Outcome           string    `json:"outcome"`
	DurationMS        int64     `json:"duration_ms"`
}

// Recorder must be safe for concurrent use.
type Recorder interface {
	AppendTurn(event Event) error
	LoadTurns() ([]Event, error)
}
