package engine

import (
	"regexp"
	"strings"
)

// RedactionRule replaces every match of Pattern with Replacement.
type RedactionRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// RedactedFallback is returned when redaction leaves nothing behind.
const RedactedFallback = "(Context Details Hidden)"

// ShuffleRedactions strips scores, clock times, periods and field position
// from shuffle context so the text cannot leak its place in the sequence.
// Rules run in order; later rules see the output of earlier ones.
var ShuffleRedactions = []RedactionRule{
	{"score", regexp.MustCompile(`(?i)score:?\s*\d+\s*[-–—]\s*\d+`), "(Score Hidden)"},
	{"lead", regexp.MustCompile(`(?i)(?:leads?|trails?|tied)\s*\d+\s*[-–—]\s*\d+`), "(Score Hidden)"},
	{"time-left", regexp.MustCompile(`(?i)\d+\s*(?:minutes?|seconds?|mins?|secs?)\s*left`), "(Time Hidden)"},
	{"clock", regexp.MustCompile(`\b\d{1,2}:\d{2}\b`), "(Time Hidden)"},
	{"quarter-short", regexp.MustCompile(`(?i)\bQ[1-4]\b`), "(Period Hidden)"},
	{"inning-half", regexp.MustCompile(`(?i)\b(?:Top|Bottom|Mid)[-\s]?\d+(?:st|nd|rd|th)?\s*(?:inning|quarter)?`), "(Period Hidden)"},
	{"ordinal-period", regexp.MustCompile(`(?i)\b\d+(?:st|nd|rd|th)\s*(?:quarter|inning)`), "(Period Hidden)"},
	{"field-at", regexp.MustCompile(`(?i)\b(?:at|on|to|near)\s+(?:the\s+)?(?:own\s+|opponent's\s+)?(\d{1,2}[-\s]?yard\s+line|goal\s+line|midfield|\d{1,2})\b`), "(Field Position Hidden)"},
	{"field", regexp.MustCompile(`(?i)\b(\d{1,2}[-\s]?yard\s+line|goal\s+line|midfield)\b`), "(Field Position Hidden)"},
	{"start-marker", regexp.MustCompile(`(?i)^START:\s*`), ""},
	{"end-marker", regexp.MustCompile(`(?i)\s*END:?$`), ""},
	{"collapse", regexp.MustCompile(`\((\w+\sHidden)\)(\s*\(\w+\sHidden\))+`), "(Info Hidden)"},
}

// Redact applies rules in order and falls back when nothing is left.
func Redact(text string, rules []RedactionRule) string {
	out := text
	for _, r := range rules {
		out = r.Pattern.ReplaceAllLiteralString(out, r.Replacement)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return RedactedFallback
	}
	return out
}

// SanitizeShuffleContext redacts shuffle context with ShuffleRedactions.
func SanitizeShuffleContext(text string) string {
	return Redact(text, ShuffleRedactions)
}
