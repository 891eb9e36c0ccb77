package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neuralinbox/neuralinbox/internal/types"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		source types.ItemSource
		want   string
	}{
		{"short capture", "купить молоко", types.SourceText, FastModel},
		{"long text", strings.Repeat("а", 501), types.SourceText, SmartModel},
		{"long voice transcript", strings.Repeat("б", 1001), types.SourceVoice, SmartModel},
		{"medium voice stays fast", strings.Repeat("в", 400), types.SourceVoice, FastModel},
		{"two intent markers", "купить молоко и хлеб\nпозвонить маме", types.SourceText, SmartModel},
		{"single intent marker", "купить молоко и хлеб", types.SourceText, FastModel},
		{"numbered list", "1. молоко 2. хлеб", types.SourceText, SmartModel},
		{"conditional structure", "если успею, зайду в банк", types.SourceText, SmartModel},
		{"cyrillic length counts runes", strings.Repeat("г", 499), types.SourceText, FastModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectModel(tt.text, tt.source))
		})
	}
}
