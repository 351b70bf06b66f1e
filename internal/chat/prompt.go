package chat

import (
	"fmt"
	"strings"

	"github.com/cortexhq/cortex-server/internal/ai"
	"github.com/cortexhq/cortex-server/internal/profile"
)

// personaPrompt establishes the assistant's behavior and is prepended to
// every completion request.
const personaPrompt = `You are Cortex, a friendly personal assistant. You help the user manage their day, remember things for them, and answer questions naturally and concisely. Keep replies short enough to be read aloud.`

// ComposePrompt builds the ordered message list for one completion call:
// one system message (persona, then one line per present profile field,
// then retrieved context bullets when any exist), the last historyLimit
// turns of prior history in chronological order, and finally the new user
// message. Absent profile fields never emit a line; an empty retrieval
// never emits the context section.
func ComposePrompt(p *profile.Profile, items []RetrievedItem, history []ai.Message, userMessage string, historyLimit int) []ai.Message {
	if historyLimit <= 0 {
		historyLimit = 10
	}

	var sb strings.Builder
	sb.WriteString(personaPrompt)

	if lines := profileLines(p); len(lines) > 0 {
		sb.WriteString("\n\nWhat you know about the user:\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}

	if len(items) > 0 {
		sb.WriteString("\n\nRelevant past context:")
		for _, it := range items {
			sb.WriteString("\n- ")
			sb.WriteString(it.Content)
		}
	}

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	out := make([]ai.Message, 0, len(history)+2)
	out = append(out, ai.Message{Role: ai.RoleSystem, Content: sb.String()})
	out = append(out, history...)
	out = append(out, ai.Message{Role: ai.RoleUser, Content: userMessage})
	return out
}

// profileLines renders present attributes in a fixed order.
func profileLines(p *profile.Profile) []string {
	if p == nil {
		return nil
	}
	var lines []string
	if p.Nickname != nil && *p.Nickname != "" {
		lines = append(lines, fmt.Sprintf("Nickname: %s", *p.Nickname))
	}
	if p.Age != nil {
		lines = append(lines, fmt.Sprintf("Age: %d", *p.Age))
	}
	if p.Gender != nil && *p.Gender != "" {
		lines = append(lines, fmt.Sprintf("Gender: %s", *p.Gender))
	}
	if p.Height != nil {
		unit := "cm"
		if p.HeightUnit != nil && *p.HeightUnit != "" {
			unit = *p.HeightUnit
		}
		lines = append(lines, fmt.Sprintf("Height: %g %s", *p.Height, unit))
	}
	if p.Weight != nil {
		unit := "kg"
		if p.WeightUnit != nil && *p.WeightUnit != "" {
			unit = *p.WeightUnit
		}
		lines = append(lines, fmt.Sprintf("Weight: %g %s", *p.Weight, unit))
	}
	if p.Bio != nil && *p.Bio != "" {
		lines = append(lines, fmt.Sprintf("Bio: %s", *p.Bio))
	}
	return lines
}
