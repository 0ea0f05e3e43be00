// Package intent classifies free-text chat messages into typed intents
// with extracted entities. Classification is rule-based and ordered:
// more specific, higher-stakes intents are checked first so generic
// matches can never shadow them.
package intent

// Type tags the classified purpose of a message.
type Type string

const (
	TypeProblem         Type = "problem"
	TypeMemoryReference Type = "memory_reference"
	TypeBooking         Type = "booking"
	TypeSearch          Type = "search"
	TypeClarification   Type = "clarification"
	TypeGeneral         Type = "general"
)

// Intent is a tagged union: exactly the variant field matching Type is
// populated, everything else stays nil.
type Intent struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
	// NeedsAI marks intents whose reply should be elaborated by the
	// external completion service. Never affects state transitions.
	NeedsAI bool `json:"needs_ai"`

	Problem *ProblemEntities `json:"problem,omitempty"`
	Memory  *MemoryEntities  `json:"memory,omitempty"`
	Booking *BookingEntities `json:"booking,omitempty"`
	Search  *SearchEntities  `json:"search,omitempty"`
}

// ProblemEntities carries the raw difficulty description for elaborated
// guidance.
type ProblemEntities struct {
	Text string `json:"text"`
}

// MemoryEntities captures how the user wants prior results adjusted.
type MemoryEntities struct {
	// Direction is "cheaper", "better", or "" for a plain backreference.
	Direction string `json:"direction,omitempty"`
}

// BookingEntities carries any timeframe hint found in scheduling text.
type BookingEntities struct {
	TimeframeHint string `json:"timeframe_hint,omitempty"`
	ProviderHint  string `json:"provider_hint,omitempty"`
}

// SearchEntities carries the constraints of an expert search.
type SearchEntities struct {
	Category    string `json:"category,omitempty"`
	BudgetCents int64  `json:"budget_cents,omitempty"`
	Location    string `json:"location,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
}

// ConstraintCount reports how many search constraints were extracted.
func (s *SearchEntities) ConstraintCount() int {
	if s == nil {
		return 0
	}
	n := 0
	if s.Category != "" {
		n++
	}
	if s.BudgetCents > 0 {
		n++
	}
	if s.Location != "" {
		n++
	}
	if s.Mode != "" {
		n++
	}
	if s.Urgency != "" {
		n++
	}
	return n
}
