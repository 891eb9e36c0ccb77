package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxDocumentBytes is the hard size cap for uploaded documents.
	MaxDocumentBytes = 10 << 20

	// MaxDocumentPages caps paginated formats. Implementations that can
	// count pages return ErrTooManyPages above this.
	MaxDocumentPages = 50
)

// TextExtractor handles plain-text document formats. Binary formats (pdf,
// docx) go through an external converter behind the same DocumentExtractor
// port; this covers everything that is already text.
type TextExtractor struct{}

var _ DocumentExtractor = (*TextExtractor)(nil)

// ExtractDocument returns the file content as-is for supported text
// formats.
func (TextExtractor) ExtractDocument(_ context.Context, data []byte, filename string) (*Content, error) {
	if len(data) > MaxDocumentBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, len(data))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".markdown", ".csv", ".log":
	default:
		return nil, fmt.Errorf("%w: unsupported document format %q", ErrExtractionFailed, ext)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %q is not valid UTF-8 text", ErrExtractionFailed, filename)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("%w: document %q is empty", ErrExtractionFailed, filename)
	}

	return &Content{
		Text:       truncateRunes(text, maxContentRunes),
		Title:      strings.TrimSuffix(filepath.Base(filename), ext),
		SourceType: "document",
		Metadata:   map[string]string{"filename": filename},
	}, nil
}
