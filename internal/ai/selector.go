package ai

import (
	"strings"
	"unicode/utf8"

	"github.com/neuralinbox/neuralinbox/internal/types"
)

// Default model tiers. The fast tier handles the common single-thought
// capture; the smart tier takes long or structurally complex input.
const (
	FastModel  = "gpt-4o-mini"
	SmartModel = "gpt-4o"
)

const (
	longTextThreshold  = 500
	longVoiceThreshold = 1000
)

// multiIntentMarkers hint that the input carries several separate thoughts.
var multiIntentMarkers = []string{
	" и ", " а также ", " плюс ", " ещё ", "\n",
	"во-первых", "во-вторых", "1.", "2.", "1)", "2)",
}

// complexMarkers hint at argumentative or conditional structure.
var complexMarkers = []string{
	"с одной стороны", "с другой стороны",
	"если", "то", "потому что", "следовательно",
}

// SelectModel picks the completion model tier from input complexity. Long
// voice transcripts, long text, multiple intents and complex structure all
// route to the smart tier; everything else stays on the fast one.
func SelectModel(text string, source types.ItemSource) string {
	length := utf8.RuneCountInString(text)

	if source == types.SourceVoice && length > longVoiceThreshold {
		return SmartModel
	}
	if length > longTextThreshold {
		return SmartModel
	}

	lower := strings.ToLower(text)
	multiIntent := 0
	for _, marker := range multiIntentMarkers {
		if strings.Contains(lower, marker) {
			multiIntent++
		}
	}
	if multiIntent >= 2 {
		return SmartModel
	}
	for _, marker := range complexMarkers {
		if strings.Contains(lower, marker) {
			return SmartModel
		}
	}
	return FastModel
}
