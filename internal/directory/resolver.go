package directory

import "strings"

// Similarity thresholds for the Levenshtein fallback. The primary
// threshold guards the main resolution path; the loose threshold is for
// confirmation steps where a wrong guess is cheap to undo.
const (
	PrimaryThreshold = 0.5
	LooseThreshold   = 0.3
)

// Trailing organizational words that carry no identity. Stripped from
// both sides before comparison so "Acme Consulting" matches "acme".
var orgSuffixes = []string{
	"consultancy", "consulting", "consultants", "consultant",
	"company", "limited", "partners", "partner", "associates",
	"advisors", "advisory", "agency", "group", "firm", "ltd",
	"llc", "inc", "corp", "co",
}

// Match is a resolved directory entry with its similarity score.
type Match struct {
	Provider Provider
	Score    float64
}

// Resolve maps free text to at most one directory entry. Stages run in
// priority order and the first success wins: exact normalized equality,
// substring containment, repeated-character collapse, then normalized
// Levenshtein similarity against every entry with the given threshold.
// Ties on the Levenshtein stage go to the first entry in directory order.
func Resolve(freeText string, providers []Provider, threshold float64) (Match, bool) {
	input := normalizeName(freeText)
	if input == "" {
		return Match{}, false
	}

	for _, p := range providers {
		if normalizeName(p.Name) == input {
			return Match{Provider: p, Score: 1.0}, true
		}
	}

	for _, p := range providers {
		name := normalizeName(p.Name)
		if strings.Contains(name, input) || strings.Contains(input, name) {
			return Match{Provider: p, Score: 0.9}, true
		}
	}

	collapsed := collapseRuns(input)
	for _, p := range providers {
		if collapseRuns(normalizeName(p.Name)) == collapsed {
			return Match{Provider: p, Score: 0.85}, true
		}
	}

	var (
		best      Match
		bestFound bool
	)
	for _, p := range providers {
		score := similarity(input, normalizeName(p.Name))
		if !bestFound || score > best.Score {
			best = Match{Provider: p, Score: score}
			bestFound = true
		}
	}
	if bestFound && best.Score > threshold {
		return best, true
	}
	return Match{}, false
}

// normalizeName lowercases, drops whitespace and punctuation, and strips
// trailing organizational suffixes.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	for _, suffix := range orgSuffixes {
		if trimmed := strings.TrimSuffix(out, suffix); trimmed != out && trimmed != "" {
			out = trimmed
			break
		}
	}
	return out
}

// collapseRuns reduces any run of a repeated character to one instance,
// so "consultting" compares equal to "consulting".
func collapseRuns(s string) string {
	var b strings.Builder
	var prev rune = -1
	for _, r := range s {
		if r != prev {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// similarity is (maxLen - editDistance) / maxLen over the normalized forms.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return float64(maxLen-editDistance(a, b)) / float64(maxLen)
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
