// Package analytics summarizes recorded planner turns.
package analytics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"nachtplan/internal/storage"
)

type DailyStats struct {
	Date         string             `json:"date"`
	Turns        int                `json:"turns"`
	UniqueChats  int                `json:"unique_chats"`
	Failed       int                `json:"failed"`
	Cancelled    int                `json:"cancelled"`
	AvgLatencyMS int64              `json:"avg_latency_ms"`
	ReplyChars   int                `json:"reply_chars"`
	Chats        map[int64]ChatStat `json:"chats"`
}

type ChatStat struct {
	ChatID int64 `json:"chat_id"`
	Turns  int   `json:"turns"`
	Failed int   `json:"failed"`
}

// AnalyzeDay aggregates the events that fall on day's calendar date in day's
// location.
func AnalyzeDay(events []storage.Event, day time.Time) *DailyStats {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:  start.Format(time.DateOnly),
		Chats: make(map[int64]ChatStat),
	}
	var latency int64
	for _, ev := range events {
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) || ev.UserMessage == "" {
			continue
		}
		stats.Turns++
		latency += ev.DurationMS
		stats.ReplyChars += len([]rune(ev.AssistantResponse))

		cs := stats.Chats[ev.ChatID]
		cs.ChatID = ev.ChatID
		cs.Turns++
		switch ev.Outcome {
		case storage.OutcomeError:
			stats.Failed++
			cs.Failed++
		case storage.OutcomeCancelled:
			stats.Cancelled++
		}
		stats.Chats[ev.ChatID] = cs
	}
	stats.UniqueChats = len(stats.Chats)
	if stats.Turns > 0 {
		stats.AvgLatencyMS = latency / int64(stats.Turns)
	}
	return stats
}

// Summary renders the stats as a short plain-text report, busiest chats
// first.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Planner usage for %s\n", ds.Date)
	fmt.Fprintf(&b, "Turns: %d (failed %d, cancelled %d)\n", ds.Turns, ds.Failed, ds.Cancelled)
	fmt.Fprintf(&b, "Chats: %d\n", ds.UniqueChats)
	if ds.Turns == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "Average turn: %dms, %d reply chars total\n", ds.AvgLatencyMS, ds.ReplyChars)

	chats := make([]ChatStat, 0, len(ds.Chats))
	for _, c := range ds.Chats {
		chats = append(chats, c)
	}
	slices.SortFunc(chats, func(x, y ChatStat) int {
		if x.Turns != y.Turns {
			return y.Turns - x.Turns
		}
		if x.ChatID < y.ChatID {
			return -1
		}
		return 1
	})
	for _, c := range chats {
		fmt.Fprintf(&b, "- chat %d: %d turns", c.ChatID, c.Turns)
		if c.Failed > 0 {
			fmt.Fprintf(&b, ", %d failed", c.Failed)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
