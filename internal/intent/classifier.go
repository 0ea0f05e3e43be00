package intent

import (
	"regexp"
	"strings"
)

// Fixed confidence per precedence tier. These reflect precedence
// strength, not statistical certainty.
const (
	confidenceProblem       = 0.95
	confidenceMemory        = 0.9
	confidenceBooking       = 0.85
	confidenceSearch        = 0.8
	confidenceClarification = 0.7
	confidenceGeneral       = 0.5
)

// needsAIConstraintLimit: booking/search intents with more extracted
// constraints than this get elaborated replies.
const needsAIConstraintLimit = 2

var problemPhrases = []string{
	"i have a problem", "problem with", "struggling", "i'm struggling",
	"issue with", "having trouble", "i'm facing", "we are facing",
	"difficulty", "in trouble", "going wrong", "losing money",
	"losing customers", "failing",
}

var memoryPhrases = []string{
	"last time", "last search", "previous", "same as before",
	"like before", "the same one", "those results", "that list",
	"earlier results", "show me again",
}

var cheaperPhrases = []string{"cheaper", "less expensive", "more affordable", "lower budget", "lower price"}
var betterPhrases = []string{"better quality", "higher quality", "more experienced", "better rated", "better one"}

var bookingPhrases = []string{
	"appointment", "schedule", "reservation",
	"set up a meeting", "set up a call", "arrange a session",
	"meet with", "session with",
}

// bookingStems match as word prefixes: "book"/"booking"/"booked" but
// never the inside of "looking".
var bookingStems = []string{"book", "reserv"}

var searchPhrases = []string{
	"need a", "need an", "looking for", "find me", "find a",
	"searching for", "search for", "want a", "want an",
	"recommend", "suggest", "show me",
}

var clarificationPhrases = []string{
	"not sure", "unsure", "what should i do", "what do you suggest",
	"i don't know", "i dont know", "confused", "can you help",
	"any advice", "no idea", "help me decide",
}

// categoryKeywords maps profession vocabulary to directory categories.
// Ordered so that more specific professions win over generic business
// vocabulary, deterministically.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"lawyer", "legal"}, {"attorney", "legal"}, {"solicitor", "legal"},
	{"legal", "legal"}, {"contract", "legal"},
	{"accountant", "financial"}, {"bookkeeping", "financial"},
	{"tax", "financial"}, {"cfo", "financial"}, {"financial", "financial"},
	{"finance", "financial"},
	{"marketing", "marketing"}, {"branding", "marketing"},
	{"advertising", "marketing"}, {"seo", "marketing"},
	{"social media", "marketing"},
	{"developer", "technology"}, {"software", "technology"},
	{"it consultant", "technology"}, {"website", "technology"},
	{"technical", "technology"},
	{"recruiting", "hr"}, {"recruitment", "hr"}, {"hiring", "hr"},
	{"hr", "hr"},
	{"startup", "business"}, {"strategy", "business"},
	{"management", "business"}, {"operations", "business"},
	{"business", "business"},
}

var timeframeHints = []string{
	"today", "tomorrow", "this week", "next week", "this month",
	"monday", "tuesday", "wednesday", "thursday", "friday",
	"saturday", "sunday", "morning", "afternoon", "evening",
}

var (
	budgetRe   = regexp.MustCompile(`(?i)(?:under|below|less than|max(?:imum)?|budget(?: of| is)?|up to|within|around)\s*\$?\s*(\d[\d,]*)|\$\s*(\d[\d,]*)`)
	locationRe = regexp.MustCompile(`\b(?:in|near|around)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`)
	withRe     = regexp.MustCompile(`(?i)\b(?:with|at)\s+([A-Za-z][A-Za-z&'. -]{2,40})$`)
)

// Classifier maps chat messages to typed intents.
type Classifier struct{}

// NewClassifier creates the rule-based intent classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Recognize classifies text given recent history lines. Evaluation is an
// ordered first-match-wins walk over the predicate tiers:
// problem > memory-reference > booking > search > clarification > general.
func (c *Classifier) Recognize(text string, history []string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))

	if containsAny(lower, problemPhrases) {
		return Intent{
			Type:       TypeProblem,
			Confidence: confidenceProblem,
			NeedsAI:    true,
			Problem:    &ProblemEntities{Text: strings.TrimSpace(text)},
		}
	}

	if m, ok := matchMemory(lower, history); ok {
		return Intent{
			Type:       TypeMemoryReference,
			Confidence: confidenceMemory,
			NeedsAI:    true,
			Memory:     m,
		}
	}

	if containsAny(lower, bookingPhrases) || containsStem(lower, bookingStems) {
		entities := &BookingEntities{
			TimeframeHint: firstMatch(lower, timeframeHints),
			ProviderHint:  extractProviderHint(text),
		}
		constraints := extractSearchEntities(text, lower).ConstraintCount()
		if entities.TimeframeHint != "" {
			constraints++
		}
		if entities.ProviderHint != "" {
			constraints++
		}
		return Intent{
			Type:       TypeBooking,
			Confidence: confidenceBooking,
			NeedsAI:    constraints > needsAIConstraintLimit,
			Booking:    entities,
		}
	}

	if containsAny(lower, searchPhrases) || matchCategory(lower) != "" {
		entities := extractSearchEntities(text, lower)
		return Intent{
			Type:       TypeSearch,
			Confidence: confidenceSearch,
			NeedsAI:    entities.ConstraintCount() > needsAIConstraintLimit,
			Search:     entities,
		}
	}

	if containsAny(lower, clarificationPhrases) {
		return Intent{
			Type:       TypeClarification,
			Confidence: confidenceClarification,
			NeedsAI:    true,
		}
	}

	return Intent{Type: TypeGeneral, Confidence: confidenceGeneral}
}

func matchMemory(lower string, history []string) (*MemoryEntities, bool) {
	// Comparatives only make sense when there is something to compare
	// against.
	hasHistory := len(history) > 0
	if containsAny(lower, memoryPhrases) && hasHistory {
		m := &MemoryEntities{}
		if containsAny(lower, cheaperPhrases) {
			m.Direction = "cheaper"
		} else if containsAny(lower, betterPhrases) {
			m.Direction = "better"
		}
		return m, true
	}
	if hasHistory && containsAny(lower, cheaperPhrases) {
		return &MemoryEntities{Direction: "cheaper"}, true
	}
	if hasHistory && containsAny(lower, betterPhrases) {
		return &MemoryEntities{Direction: "better"}, true
	}
	return nil, false
}

func extractSearchEntities(raw, lower string) *SearchEntities {
	e := &SearchEntities{Category: matchCategory(lower)}

	if m := budgetRe.FindStringSubmatch(raw); m != nil {
		amount := m[1]
		if amount == "" {
			amount = m[2]
		}
		e.BudgetCents = parseDollars(amount)
	}
	if m := locationRe.FindStringSubmatch(raw); m != nil {
		e.Location = m[1]
	}
	switch {
	case strings.Contains(lower, "online") || strings.Contains(lower, "remote") || strings.Contains(lower, "virtual"):
		e.Mode = "online"
	case strings.Contains(lower, "in person") || strings.Contains(lower, "in-person") || strings.Contains(lower, "offline") || strings.Contains(lower, "face to face"):
		e.Mode = "offline"
	}
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "asap") || strings.Contains(lower, "immediately") {
		e.Urgency = "urgent"
	}
	return e
}

func matchCategory(lower string) string {
	for _, kc := range categoryKeywords {
		// Short keywords ("hr", "tax") must match whole words or they
		// fire inside unrelated text.
		if len(kc.keyword) <= 3 {
			if containsWord(lower, kc.keyword) {
				return kc.category
			}
			continue
		}
		if strings.Contains(lower, kc.keyword) {
			return kc.category
		}
	}
	return ""
}

func containsStem(s string, stems []string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		for _, stem := range stems {
			if strings.HasPrefix(f, stem) {
				return true
			}
		}
	}
	return false
}

func containsWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// extractProviderHint pulls a trailing "with <name>" off booking text so
// the flow can try fuzzy resolution immediately.
func extractProviderHint(raw string) string {
	m := withRe.FindStringSubmatch(strings.TrimRight(strings.TrimSpace(raw), ".!?"))
	if m == nil {
		return ""
	}
	hint := strings.TrimSpace(m[1])
	lower := strings.ToLower(hint)
	// "with someone", "with a lawyer tomorrow" and friends are not names.
	if strings.HasPrefix(lower, "a ") || strings.HasPrefix(lower, "an ") || strings.HasPrefix(lower, "the ") {
		return ""
	}
	switch lower {
	case "someone", "anyone", "them", "once":
		return ""
	}
	return hint
}

func parseDollars(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n * 100
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func firstMatch(s string, phrases []string) string {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return p
		}
	}
	return ""
}
