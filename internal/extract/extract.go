// Package extract defines the document-to-text collaborator used by contract
// analysis and document enhancement. Extraction fidelity is not guaranteed;
// callers treat the result as best-effort text.
package extract

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Extractor converts an uploaded document into plain text.
type Extractor interface {
	Text(ctx context.Context, r io.Reader, contentType string) (string, error)
}

// maxDocumentBytes caps uploads at 10 MiB.
const maxDocumentBytes = 10 << 20

// PlainText is the default Extractor: it accepts text-like uploads verbatim
// and rejects binary formats it cannot decode. PDF and word-processor
// extraction is an external collaborator concern.
type PlainText struct{}

// Text reads the document and returns it as UTF-8 text.
func (PlainText) Text(_ context.Context, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return "", fmt.Errorf("document exceeds %d byte limit", maxDocumentBytes)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("unsupported document encoding (content type %q): expected UTF-8 text", contentType)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("document contains no text")
	}
	return text, nil
}
