package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a completion for an ordered list of messages.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Embedder converts text into a fixed-length vector. Dimensions is the
// output size of the backing model; every stored vector must match it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
