package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PayloadMarker delimits the structured payload in model output. Only the
// model may emit it; Sanitize strips it from anything a user supplies.
const PayloadMarker = "[SKILL_DATA]"

// MaxInputRunes bounds every user-supplied text that reaches a prompt.
const MaxInputRunes = 500

var (
	markerPattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(PayloadMarker))
	codeFence     = "```"
)

// Sanitize neutralizes user text before it is embedded in a prompt: it drops
// angle brackets and control characters, removes payload markers and code
// fences, trims, and truncates to MaxInputRunes. Sanitize(Sanitize(x)) ==
// Sanitize(x) for every x.
func Sanitize(input string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r == '\n' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r == utf8.RuneError:
			return -1
		}
		return r
	}, input)

	// Removing one token can splice another together ("[SKILL[SKILL_DATA]_DATA]"),
	// so strip until nothing changes.
	for {
		next := markerPattern.ReplaceAllString(out, "")
		next = strings.ReplaceAll(next, codeFence, "")
		if next == out {
			break
		}
		out = next
	}

	out = strings.TrimSpace(out)
	out = truncateRunes(out, MaxInputRunes)
	return strings.TrimSpace(out)
}

// ContainsMarker reports whether text carries a payload marker in any case.
func ContainsMarker(text string) bool {
	return markerPattern.MatchString(text)
}

// FindMarker returns the byte span of the first payload marker, or -1, -1.
// Case folding can match a marker whose byte length differs from
// PayloadMarker (e.g. KELVIN SIGN for K).
func FindMarker(text string) (start, end int) {
	loc := markerPattern.FindStringIndex(text)
	if loc == nil {
		return -1, -1
	}
	return loc[0], loc[1]
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
