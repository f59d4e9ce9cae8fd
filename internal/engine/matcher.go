package engine

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Match is the outcome of comparing a typed answer against the canonical one.
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchVariant
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchVariant:
		return "variant"
	default:
		return "none"
	}
}

// Correct reports whether the match locks the item.
func (m Match) Correct() bool { return m == MatchExact || m == MatchVariant }

// Hint is feedback for a wrong answer that never reveals the answer itself.
type Hint string

const (
	HintNone          Hint = ""
	HintClose         Hint = "close"
	HintNeedsFullForm Hint = "needsFullForm"
)

// Message is the player-facing text for a hint.
func (h Hint) Message() string {
	switch h {
	case HintClose:
		return "Close! Keep going..."
	case HintNeedsFullForm:
		return "Need full name?"
	default:
		return ""
	}
}

// Variants maps a normalized canonical answer to accepted alternates.
type Variants map[string][]string

// DefaultVariants is the built-in alternate answer table.
func DefaultVariants() Variants {
	return Variants{
		"incomplete pass": {"incompletion"},
		"no gain":         {"0 yards", "nothing"},
		"home run":        {"homer"},
	}
}

// Merge returns a copy of v extended with extra. Keys and values are normalized.
func (v Variants) Merge(extra map[string][]string) Variants {
	out := make(Variants, len(v)+len(extra))
	for k, alts := range v {
		out[Normalize(k)] = append([]string(nil), alts...)
	}
	for k, alts := range extra {
		key := Normalize(k)
		for _, a := range alts {
			out[key] = append(out[key], Normalize(a))
		}
	}
	return out
}

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Evaluate compares a typed answer to the canonical answer. It is pure.
func Evaluate(text, answer string, variants Variants) Match {
	user := Normalize(text)
	canonical := Normalize(answer)
	if user == "" {
		return MatchNone
	}
	if user == canonical {
		return MatchExact
	}
	for _, alt := range variants[canonical] {
		if Normalize(alt) == user {
			return MatchVariant
		}
	}
	return MatchNone
}

// HintFor classifies a wrong answer. Correct or empty input yields HintNone.
func HintFor(text, answer string) Hint {
	user := Normalize(text)
	canonical := Normalize(answer)
	if user == "" || user == canonical {
		return HintNone
	}

	userLen := float64(utf8.RuneCountInString(user))
	threshold := math.Max(4, float64(utf8.RuneCountInString(canonical))/2)
	if strings.Contains(canonical, user) && userLen >= threshold {
		return HintClose
	}
	if strings.Contains(canonical, " ") && !strings.Contains(user, " ") && strings.HasSuffix(canonical, " "+user) {
		return HintNeedsFullForm
	}
	return HintNone
}

// Points is the value of resolving an item of the given importance.
func Points(importance float64) int {
	if importance <= 0 {
		return 1
	}
	return int(math.Round(importance * 10))
}
