package policy

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	input := "Mail me at sam@example.com or +1 (555) 123-9876, card 4242 4242 4242 4242."
	out, changed := RedactPII(input)

	assert.True(t, changed)
	for _, mask := range []string{"[email]", "[phone]", "[card]"} {
		assert.Contains(t, out, mask)
	}
	assert.NotContains(t, out, "sam@example.com")
}

func TestLogPreviewBoundsLength(t *testing.T) {
	out := LogPreview(strings.Repeat("go ", 100))
	assert.Equal(t, LogPreviewRunes+1, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))

	assert.Equal(t, "set level to 5", LogPreview("set level to 5"))
}
