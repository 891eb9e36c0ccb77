// Package extract turns external inputs (URLs, documents) into text the
// ingestion pipeline can consume.
package extract

import (
	"context"
	"errors"
)

// ErrExtractionFailed wraps any failure to pull text out of an input. The
// router reports it to the user instead of silently dropping the message.
var ErrExtractionFailed = errors.New("extraction failed")

// Structured document-extraction failures. They are user-visible, so the
// caller can explain exactly which limit was hit.
var (
	ErrDocumentTooLarge = errors.New("document exceeds the size limit")
	ErrTooManyPages     = errors.New("document exceeds the page limit")
)

// Content is extracted text plus provenance metadata.
type Content struct {
	Text       string
	Title      string
	SourceType string
	Metadata   map[string]string
}

// URLFetcher pulls readable content out of a web page.
type URLFetcher interface {
	FetchURL(ctx context.Context, url string) (*Content, error)
}

// DocumentExtractor pulls text out of an uploaded document (pdf, docx).
// Implementations return ErrDocumentTooLarge / ErrTooManyPages for inputs
// over their limits.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, data []byte, filename string) (*Content, error)
}
