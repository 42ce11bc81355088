package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies the original file format of a document.
type Format string

// Supported document formats.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// String returns the string representation.
func (f Format) String() string {
	return string(f)
}

// IsValid returns true if the format is supported.
func (f Format) IsValid() bool {
	switch f {
	case FormatText, FormatMarkdown, FormatHTML, FormatPDF, FormatDOCX:
		return true
	default:
		return false
	}
}

// FormatFromPath maps a file extension to a document format.
// Returns false for extensions no normaliser handles.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".rst":
		return FormatText, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".html", ".htm", ".xhtml":
		return FormatHTML, true
	case ".pdf":
		return FormatPDF, true
	case ".docx":
		return FormatDOCX, true
	default:
		return "", false
	}
}

// Document is a normalised document in the corpus.
// It is the canonical representation after normalisation.
type Document struct {
	// ID is the unique identifier for the document.
	// Derived deterministically from SourceID so re-ingestion replaces.
	ID string

	// SourceID is the caller-supplied source identifier (path, URL, name).
	SourceID string

	// Format is the original format tag.
	Format Format

	// Content is the full normalised text.
	Content string

	// Version identifies the content revision. Chunk IDs embed it,
	// so a changed document produces a disjoint chunk ID set.
	Version string

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document content last changed.
	UpdatedAt time.Time
}

// ContentVersion returns the version tag for a piece of normalised text.
func ContentVersion(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:6])
}

// Chunk is an immutable span of a document plus its vector.
type Chunk struct {
	// ID is unique and stable for the lifetime of the parent document version.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Content is the text of the span.
	Content string

	// Start is the character offset (inclusive) within the document.
	Start int

	// End is the character offset (exclusive) within the document.
	End int

	// Position is the ordinal sequence index within the document.
	Position int

	// Embedding is the vector representation for semantic search.
	Embedding []float32
}

// Len returns the span length in characters.
func (c Chunk) Len() int {
	return c.End - c.Start
}
