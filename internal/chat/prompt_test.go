package chat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cortexhq/cortex-server/internal/ai"
	"github.com/cortexhq/cortex-server/internal/profile"
)

func strPtr(s string) *string   { return &s }
func intPtr(n int) *int         { return &n }
func fltPtr(f float64) *float64 { return &f }

func TestComposePrompt_NoProfileNoContext(t *testing.T) {
	msgs := ComposePrompt(nil, nil, nil, "hello", 10)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	sys := msgs[0]
	if sys.Role != ai.RoleSystem {
		t.Fatalf("expected system role, got %q", sys.Role)
	}
	if strings.Contains(sys.Content, "What you know about the user") {
		t.Fatalf("expected no personalization block, got %q", sys.Content)
	}
	if strings.Contains(sys.Content, "Relevant past context") {
		t.Fatalf("expected no context block, got %q", sys.Content)
	}
	if msgs[1].Role != ai.RoleUser || msgs[1].Content != "hello" {
		t.Fatalf("unexpected final message: %+v", msgs[1])
	}
}

func TestComposePrompt_AllNilProfileFields(t *testing.T) {
	p := &profile.Profile{ID: "u"}
	msgs := ComposePrompt(p, nil, nil, "hello", 10)
	sys := msgs[0].Content
	if strings.Contains(sys, "What you know about the user") {
		t.Fatalf("expected no personalization block for empty profile, got %q", sys)
	}
}

func TestComposePrompt_ProfileFieldOrderAndGating(t *testing.T) {
	p := &profile.Profile{
		ID:         "u",
		Nickname:   strPtr("Alex"),
		Age:        intPtr(30),
		Height:     fltPtr(180),
		HeightUnit: strPtr("cm"),
		Bio:        strPtr("runner"),
		// Gender and Weight absent
	}
	msgs := ComposePrompt(p, nil, nil, "hello", 10)
	sys := msgs[0].Content

	for _, want := range []string{"Nickname: Alex", "Age: 30", "Height: 180 cm", "Bio: runner"} {
		if !strings.Contains(sys, want) {
			t.Fatalf("expected %q in system prompt:\n%s", want, sys)
		}
	}
	if strings.Contains(sys, "Gender:") || strings.Contains(sys, "Weight:") {
		t.Fatalf("absent fields must not emit lines:\n%s", sys)
	}

	// fixed order
	if strings.Index(sys, "Nickname:") > strings.Index(sys, "Age:") ||
		strings.Index(sys, "Age:") > strings.Index(sys, "Height:") ||
		strings.Index(sys, "Height:") > strings.Index(sys, "Bio:") {
		t.Fatalf("profile lines out of order:\n%s", sys)
	}
}

func TestComposePrompt_ContextBullets(t *testing.T) {
	items := []RetrievedItem{
		{Content: "bought flights to Lisbon", Similarity: 0.92},
		{Content: "meeting moved to 3pm", Similarity: 0.81},
	}
	msgs := ComposePrompt(nil, items, nil, "what's up", 10)
	sys := msgs[0].Content
	if !strings.Contains(sys, "Relevant past context:") {
		t.Fatalf("expected context block:\n%s", sys)
	}
	if !strings.Contains(sys, "- bought flights to Lisbon") || !strings.Contains(sys, "- meeting moved to 3pm") {
		t.Fatalf("expected one bullet per item:\n%s", sys)
	}
}

func TestComposePrompt_HistoryCap(t *testing.T) {
	hist := make([]ai.Message, 0, 15)
	for i := 0; i < 15; i++ {
		hist = append(hist, ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("h%d", i)})
	}
	msgs := ComposePrompt(nil, nil, hist, "final", 10)

	// system + 10 history + user
	if len(msgs) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(msgs))
	}
	if msgs[1].Content != "h5" || msgs[10].Content != "h14" {
		t.Fatalf("expected most recent 10 turns in original order, got first=%q last=%q", msgs[1].Content, msgs[10].Content)
	}
}

func TestComposePrompt_ScheduleScenario(t *testing.T) {
	p := &profile.Profile{ID: "u", Nickname: strPtr("Alex")}
	msgs := ComposePrompt(p, nil, nil, "What's on my schedule today?", 10)

	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages (system, user), got %d", len(msgs))
	}
	sys := msgs[0].Content
	if !strings.Contains(sys, "Nickname: Alex") {
		t.Fatalf("expected nickname line:\n%s", sys)
	}
	if strings.Contains(sys, "Relevant past context") {
		t.Fatalf("expected no context section:\n%s", sys)
	}
}
