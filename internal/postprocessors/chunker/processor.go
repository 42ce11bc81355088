// Package chunker provides a boundary-aware, overlapping text chunking processor.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// DefaultTolerance is how far below the target size a boundary is searched for.
const DefaultTolerance = 300

// Processor splits document content into overlapping chunks that end on a
// paragraph or sentence boundary where one is near the target size.
// Offsets are in characters (runes), not bytes.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
	tolerance int
	boundary  domain.Boundary
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithTolerance sets the boundary search window below the chunk size.
func WithTolerance(tolerance int) Option {
	return func(p *Processor) {
		if tolerance >= 0 {
			p.tolerance = tolerance
		}
	}
}

// WithBoundary sets the preferred split point.
func WithBoundary(b domain.Boundary) Option {
	return func(p *Processor) {
		switch b {
		case domain.BoundaryParagraph, domain.BoundarySentence, domain.BoundaryNone:
			p.boundary = b
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		tolerance: DefaultTolerance,
		boundary:  domain.BoundaryParagraph,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}
	// Every chunk must end past the next chunk's start.
	if p.overlap+p.tolerance >= p.chunkSize {
		p.tolerance = max(p.chunkSize-p.overlap-1, 0)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
// Consecutive chunks overlap by exactly the configured overlap, so the spans
// cover the whole document.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		// Empty content produces no chunks
		return nil, nil
	}

	version := doc.Version
	if version == "" {
		version = domain.ContentVersion(doc.Content)
	}

	runes := []rune(doc.Content)
	n := len(runes)

	step := p.chunkSize - p.overlap
	chunks := make([]domain.Chunk, 0, n/step+1)

	start := 0
	for seq := 0; ; seq++ {
		if seq%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		end := start + p.chunkSize
		last := end >= n
		if last {
			end = n
		} else {
			end = p.findBoundary(runes, start, end)
		}

		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(doc.ID, version, seq),
			DocumentID: doc.ID,
			Content:    string(runes[start:end]),
			Start:      start,
			End:        end,
			Position:   seq,
		})

		if last {
			break
		}
		start = end - p.overlap
	}

	return chunks, nil
}

// ChunkID builds the stable ID of the seq-th chunk of a document version.
// IDs sort in document order.
func ChunkID(documentID, version string, seq int) string {
	return fmt.Sprintf("%s:%s:%05d", documentID, version, seq)
}

// findBoundary returns the end offset for a chunk starting at start whose
// hard limit is limit. It scans backwards through the tolerance window for a
// paragraph break, then a sentence end, then a line break, and falls back to
// limit.
func (p *Processor) findBoundary(runes []rune, start, limit int) int {
	if p.boundary == domain.BoundaryNone || p.tolerance == 0 {
		return limit
	}

	lo := max(limit-p.tolerance, start+p.overlap+1)

	if p.boundary == domain.BoundaryParagraph {
		for i := limit; i >= lo; i-- {
			if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
				return i
			}
		}
	}

	for i := limit; i >= lo; i-- {
		if isSentenceEnd(runes, i) {
			return i
		}
	}

	for i := limit; i >= lo; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}

	return limit
}

// isSentenceEnd reports whether a sentence ends just before offset i.
func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i-1] {
	case '.', '!', '?':
		return i == len(runes) || unicode.IsSpace(runes[i])
	default:
		return false
	}
}
