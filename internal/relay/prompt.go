package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"nachtplan/internal/catalog"
	"nachtplan/internal/llm"
)

const plannerPolicy = `You are the itinerary planner of a city guide for nightlife, dining, events and movies in German cities.

Rules:
1. If the user has not told you the city, the date, the budget, the group size or the mood they are after, ask short clarifying questions before planning. Ask at most three questions at a time.
2. Recommend ONLY venues and events listed in the reference data below. Never invent places, events, prices or opening hours. If nothing fits, say so and suggest the closest listed alternatives.
3. Structure the plan with a heading per time slot (for example "19:00 Dinner", "21:30 Concert", "23:30 Bar") and use bullet points for details.
4. For every stop include the estimated cost per person, the timing, and how long it takes to get to the next stop.
5. Finish with a short total budget estimate.
6. Answer in the language the user writes in.`

// BuildSystemPrompt renders the leading instruction message with the
// snapshot embedded verbatim as JSON.
func BuildSystemPrompt(snap catalog.Snapshot, now time.Time) (llm.Message, error) {
	venues, err := json.Marshal(snap.Venues)
	if err != nil {
		return llm.Message{}, fmt.Errorf("serialize venues: %w", err)
	}
	events, err := json.Marshal(snap.Events)
	if err != nil {
		return llm.Message{}, fmt.Errorf("serialize events: %w", err)
	}

	var b strings.Builder
	b.WriteString(plannerPolicy)
	fmt.Fprintf(&b, "\n\nToday is %s.\n", now.Format("Monday, 2006-01-02"))
	fmt.Fprintf(&b, "\nAVAILABLE VENUES (%d):\n", len(snap.Venues))
	b.Write(venues)
	fmt.Fprintf(&b, "\n\nUPCOMING EVENTS (%d):\n", len(snap.Events))
	b.Write(events)

	return llm.Message{Role: llm.RoleSystem, Content: b.String()}, nil
}

// withSystemPrompt prepends the instruction message to the caller's turns.
func withSystemPrompt(system llm.Message, conversation []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(conversation)+1)
	out = append(out, system)
	return append(out, conversation...)
}
