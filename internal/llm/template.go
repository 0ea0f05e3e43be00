package llm

import (
	"context"
	"strings"
)

// TemplateCompleter produces canned replies without calling any
// provider. It is the default when OPENAI_API_KEY is unset, and keeps
// the dialog fully functional offline.
type TemplateCompleter struct{}

// NewTemplateCompleter creates the offline completer.
func NewTemplateCompleter() *TemplateCompleter {
	return &TemplateCompleter{}
}

var _ Completer = (*TemplateCompleter)(nil)

// Complete returns a fixed reply keyed off the last user message.
func (t *TemplateCompleter) Complete(_ context.Context, req Request) (string, error) {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	switch {
	case strings.Contains(last, "thank"):
		return "You're welcome! Let me know if there's anything else I can help with.", nil
	case strings.Contains(last, "hello"), strings.Contains(last, "hi "), last == "hi":
		return "Hello! I can help you find and book business consultants. What do you need help with?", nil
	default:
		return "I can help you find consultants, check their availability, and book sessions. Tell me what kind of expert you're looking for.", nil
	}
}
