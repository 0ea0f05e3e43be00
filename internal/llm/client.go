// Package llm abstracts the completion provider used to phrase
// free-form replies. Core dialog behavior never depends on it; when no
// provider is configured a template completer stands in.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a provider needs for one completion.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Completer generates one reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
