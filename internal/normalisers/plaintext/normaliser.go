package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFormats returns the formats this normaliser handles.
// Markdown is included as a fallback: the raw source is still readable text.
func (n *Normaliser) SupportedFormats() []domain.Format {
	return []domain.Format{domain.FormatText, domain.FormatMarkdown}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise decodes UTF-8 text, dropping a byte order mark and
// normalising line endings to \n.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content, err := Decode(raw.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParseFailure, raw.SourceID, err)
	}

	return &driven.NormaliseResult{
		Document: domain.Document{
			SourceID: raw.SourceID,
			Format:   raw.Format,
			Content:  content,
		},
	}, nil
}

// Decode validates and cleans raw text bytes. Binary content (NUL bytes or
// invalid UTF-8) is rejected.
func Decode(b []byte) (string, error) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if bytes.IndexByte(b, 0) >= 0 {
		return "", fmt.Errorf("binary content")
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid UTF-8")
	}
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n"), nil
}
