package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/consultly/dialog-engine/pkg/logging"
)

// topicKeywords is the fixed keyword-to-topic mapping used when folding
// turns into the summary. Ordered; first hit per keyword wins.
var topicKeywords = []struct {
	keyword string
	topic   string
}{
	{"contract", "contracts"},
	{"tax", "taxes"},
	{"marketing", "marketing"},
	{"budget", "pricing"},
	{"price", "pricing"},
	{"cheap", "pricing"},
	{"cost", "pricing"},
	{"website", "technology"},
	{"software", "technology"},
	{"hiring", "hiring"},
	{"recruit", "hiring"},
	{"urgent", "urgency"},
	{"strategy", "strategy"},
	{"startup", "strategy"},
}

// Memory folds turns into per-session summaries and generates
// backreference sentences for replies.
type Memory struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// New creates the conversation memory over the given store.
func New(store Store, logger *logging.Logger) *Memory {
	if store == nil {
		panic("memory: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Memory{store: store, logger: logger, now: time.Now}
}

// AddTurn appends a turn and incrementally folds its metadata and text
// into the session summary.
func (m *Memory) AddTurn(ctx context.Context, sessionID, userText, reply string, meta TurnMetadata) error {
	turn := Turn{
		UserText:  userText,
		Reply:     reply,
		Timestamp: m.now().UTC(),
		Metadata:  meta,
	}
	if err := m.store.AppendTurn(ctx, sessionID, turn); err != nil {
		return err
	}

	sum, err := m.store.LoadSummary(ctx, sessionID)
	if err != nil {
		return err
	}
	foldTurn(&sum, turn)
	return m.store.SaveSummary(ctx, sessionID, sum)
}

// RecentContext returns the last n turns as alternating user/assistant
// lines, most recent last. Used only to prime explanatory text.
func (m *Memory) RecentContext(ctx context.Context, sessionID string, n int) (string, error) {
	turns, err := m.store.Turns(ctx, sessionID, n)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\n", t.UserText)
		fmt.Fprintf(&b, "Assistant: %s\n", t.Reply)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RecentTurns returns the last n turns, oldest first.
func (m *Memory) RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	return m.store.Turns(ctx, sessionID, n)
}

// Summary exposes the folded digest for a session.
func (m *Memory) Summary(ctx context.Context, sessionID string) (Summary, error) {
	return m.store.LoadSummary(ctx, sessionID)
}

// Clear drops all memory for a session.
func (m *Memory) Clear(ctx context.Context, sessionID string) error {
	return m.store.Clear(ctx, sessionID)
}

// ContextualReference produces one grounding sentence, in fixed priority
// order: category preference, then result count, then recent topic.
// Empty when there is nothing worth recalling.
func (m *Memory) ContextualReference(ctx context.Context, sessionID string) string {
	sum, err := m.store.LoadSummary(ctx, sessionID)
	if err != nil {
		m.logger.Warn("failed to load summary for contextual reference",
			"session_id", sessionID, "error", err)
		return ""
	}

	if len(sum.Categories) > 0 {
		return fmt.Sprintf("Earlier you were looking for %s experts.", strings.Join(sum.Categories, " and "))
	}
	if len(sum.LastResults) > 0 {
		return fmt.Sprintf("Last time I found %d providers for you.", len(sum.LastResults))
	}
	if len(sum.Topics) > 0 {
		return fmt.Sprintf("We talked about %s before.", sum.Topics[len(sum.Topics)-1])
	}
	return ""
}

func foldTurn(sum *Summary, t Turn) {
	if c := t.Metadata.Category; c != "" {
		sum.Categories = appendUnique(sum.Categories, c)
	}
	lower := strings.ToLower(t.UserText)
	for _, kt := range topicKeywords {
		if strings.Contains(lower, kt.keyword) {
			sum.Topics = appendUnique(sum.Topics, kt.topic)
		}
	}
	if a := t.Metadata.ActionType; a != "" {
		sum.Actions = append(sum.Actions, a)
	}
	if len(t.Metadata.ResultNames) > 0 {
		sum.LastResults = t.Metadata.ResultNames
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
