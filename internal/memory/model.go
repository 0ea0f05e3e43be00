// Package memory keeps the rolling transcript and derived summary for
// each conversation. Turns are append-only; the summary is folded
// incrementally on every turn and discarded with the session.
package memory

import (
	"context"
	"time"
)

// Turn is one user message plus the system's reply. Never mutated after
// creation.
type Turn struct {
	UserText  string       `json:"user_text"`
	Reply     string       `json:"reply"`
	Timestamp time.Time    `json:"timestamp"`
	Metadata  TurnMetadata `json:"metadata"`
}

// TurnMetadata is what the orchestrator knows about a turn at append time.
type TurnMetadata struct {
	ActionType  string   `json:"action_type,omitempty"`
	Category    string   `json:"category,omitempty"`
	ResultNames []string `json:"result_names,omitempty"`
}

// Summary is the derived per-session digest.
type Summary struct {
	// Categories the user has shown interest in, in first-seen order.
	Categories []string `json:"categories,omitempty"`
	// Topics extracted from turn text via the fixed keyword mapping.
	Topics []string `json:"topics,omitempty"`
	// Actions is the ordered log of action types across the session.
	Actions []string `json:"actions,omitempty"`
	// LastResults is the most recent non-empty provider result set.
	LastResults []string `json:"last_results,omitempty"`
}

// Store persists transcripts and summaries. Implementations: redis for
// deployments, an in-process map for development and tests.
type Store interface {
	AppendTurn(ctx context.Context, sessionID string, t Turn) error
	// Turns returns the last n turns, oldest first. n <= 0 means all.
	Turns(ctx context.Context, sessionID string, n int) ([]Turn, error)
	SaveSummary(ctx context.Context, sessionID string, s Summary) error
	// LoadSummary returns a zero Summary for unknown sessions.
	LoadSummary(ctx context.Context, sessionID string) (Summary, error)
	Clear(ctx context.Context, sessionID string) error
}
