package openai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateForEmbedding(t *testing.T) {
	short := "купить молоко"
	assert.Equal(t, short, truncateForEmbedding(short))

	// One ASCII byte up front puts every two-byte rune on an odd offset, so
	// a blind byte cut at maxEmbedChars would land mid-rune.
	long := "a" + strings.Repeat("я", maxEmbedChars/2)
	got := truncateForEmbedding(long)
	assert.LessOrEqual(t, len(got), maxEmbedChars)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "я", string(got[len(got)-2:]))
}
