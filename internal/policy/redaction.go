package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// LogPreviewRunes bounds user text echoed into logs.
const LogPreviewRunes = 80

// RedactPII masks e-mail addresses, card numbers and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	// Cards before phones, otherwise the phone pattern swallows card numbers.
	for _, r := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{emailPattern, "[email]"},
		{cardPattern, "[card]"},
		{phonePattern, "[phone]"},
	} {
		next := r.re.ReplaceAllString(out, r.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// LogPreview returns a PII-free, bounded rendition of user text for logs.
func LogPreview(input string) string {
	out, _ := RedactPII(input)
	if len([]rune(out)) > LogPreviewRunes {
		return truncateRunes(out, LogPreviewRunes) + "…"
	}
	return out
}
