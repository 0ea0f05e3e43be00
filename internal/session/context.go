// Package session owns the mutable per-conversation state shared across
// turns. Contexts live in a keyed in-process store with a sliding
// inactivity TTL; all mutation goes through Update.
package session

import (
	"time"

	"github.com/consultly/dialog-engine/internal/booking"
	"github.com/consultly/dialog-engine/internal/directory"
)

// Entities is the accumulated constraint set for a conversation.
type Entities struct {
	Category    string `json:"category,omitempty"`
	BudgetCents int64  `json:"budget_cents,omitempty"`
	Location    string `json:"location,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
}

// merge unions non-zero fields from other into e.
func (e *Entities) merge(other Entities) {
	if other.Category != "" {
		e.Category = other.Category
	}
	if other.BudgetCents > 0 {
		e.BudgetCents = other.BudgetCents
	}
	if other.Location != "" {
		e.Location = other.Location
	}
	if other.Mode != "" {
		e.Mode = other.Mode
	}
	if other.Urgency != "" {
		e.Urgency = other.Urgency
	}
}

// Context is the per-conversation state record.
type Context struct {
	SessionID    string               `json:"session_id"`
	UserID       string               `json:"user_id,omitempty"`
	State        string               `json:"state"`
	Entities     Entities             `json:"entities"`
	LastResults  []directory.Provider `json:"last_results,omitempty"`
	Booking      *booking.State       `json:"booking,omitempty"`
	MessageCount int                  `json:"message_count"`
	LastActivity time.Time            `json:"last_activity"`
}

// Changes is a partial update applied by Store.Update. Zero-value fields
// are left untouched; the message counter always advances.
type Changes struct {
	UserID      string
	State       string
	Entities    Entities
	LastResults []directory.Provider
	Booking     *booking.State
	// ClearBooking drops the active booking state; takes precedence over
	// Booking.
	ClearBooking bool
}
