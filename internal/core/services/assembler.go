package services

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// AssembleOptions configure an Assembler.
type AssembleOptions struct {
	// Budget is the maximum context size, measured in Unit.
	Budget int

	// Unit is chars or tokens.
	Unit domain.BudgetUnit

	// MinTruncated is the smallest amount of chunk text, in Unit, that makes
	// a truncated chunk worth admitting.
	MinTruncated int

	// UsableThreshold: when no result reaches it the context is
	// domain.NoContextMarker. Results below it are otherwise admitted.
	UsableThreshold float64
}

// AssembleOptionsFor builds assembler options from settings.
func AssembleOptionsFor(c domain.ContextSettings, r domain.RetrievalSettings) AssembleOptions {
	return AssembleOptions{
		Budget:          c.Budget,
		Unit:            c.Unit,
		MinTruncated:    c.MinTruncated,
		UsableThreshold: r.UsableThreshold,
	}
}

// Assembler packs ranked chunks into a bounded prompt context.
type Assembler struct {
	opts AssembleOptions
}

// NewAssembler creates an assembler.
func NewAssembler(opts AssembleOptions) *Assembler {
	if !opts.Unit.IsValid() {
		opts.Unit = domain.BudgetUnitChars
	}
	if opts.MinTruncated < 1 {
		opts.MinTruncated = 1
	}
	return &Assembler{opts: opts}
}

// Assemble appends chunks in rank order, each rendered as
//
//	[n] <source>
//	<text>
//
// until the next one would overflow the budget. That chunk is truncated if at
// least MinTruncated of its text still fits, and dropped otherwise; either way
// assembly stops there. When every score is below UsableThreshold, or nothing
// is admitted, the result carries domain.NoContextMarker.
func (a *Assembler) Assemble(results []domain.RetrievalResult, snap *Snapshot) domain.AssembledContext {
	ctx := domain.AssembledContext{
		Text:   domain.NoContextMarker,
		Budget: a.opts.Budget,
		Unit:   a.opts.Unit,
	}

	// The budget in characters: tokens are ceil(chars/4).
	maxChars := a.opts.Budget
	if a.opts.Unit == domain.BudgetUnitTokens {
		maxChars = a.opts.Budget * 4
	}

	usable := slices.ContainsFunc(results, func(r domain.RetrievalResult) bool {
		return r.Score >= a.opts.UsableThreshold
	})
	if !usable {
		return ctx
	}

	var b strings.Builder
	used := 0
	for _, res := range results {
		chunk, ok := snap.Chunk(res.ChunkID)
		if !ok {
			continue
		}
		source := res.DocumentID
		if doc, ok := snap.Document(chunk.DocumentID); ok && doc.SourceID != "" {
			source = doc.SourceID
		}

		n := len(ctx.Citations) + 1
		header := fmt.Sprintf("[%d] %s\n", n, source)
		text := chunk.Content
		entryChars := utf8.RuneCountInString(header) + utf8.RuneCountInString(text) + 2

		citation := domain.Citation{
			Index:      n,
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			SourceID:   source,
			Score:      res.Score,
		}

		if used+entryChars <= maxChars {
			b.WriteString(header)
			b.WriteString(text)
			b.WriteString("\n\n")
			used += entryChars
			ctx.Citations = append(ctx.Citations, citation)
			continue
		}

		avail := maxChars - used - utf8.RuneCountInString(header) - 2
		if prefix, ok := a.truncate(text, avail); ok {
			b.WriteString(header)
			b.WriteString(prefix)
			b.WriteString("\n\n")
			used += utf8.RuneCountInString(header) + utf8.RuneCountInString(prefix) + 2
			citation.Truncated = true
			ctx.Citations = append(ctx.Citations, citation)
		}
		break
	}

	if len(ctx.Citations) == 0 {
		return ctx
	}
	ctx.Text = b.String()
	ctx.Size = a.opts.Unit.Measure(used)
	return ctx
}

// truncate returns the longest prefix of text within avail characters, cut
// back to a word boundary when one exists. ok is false when the prefix would
// be shorter than MinTruncated.
func (a *Assembler) truncate(text string, avail int) (string, bool) {
	if avail <= 0 || a.opts.Unit.Measure(avail) < a.opts.MinTruncated {
		return "", false
	}

	runes := []rune(text)
	if avail >= len(runes) {
		return text, true
	}
	prefix := runes[:avail]

	cut := len(prefix)
	for cut > 0 && !unicode.IsSpace(prefix[cut-1]) {
		cut--
	}
	if cut > 0 && a.opts.Unit.Measure(cut) >= a.opts.MinTruncated {
		prefix = prefix[:cut]
	}

	out := strings.TrimRightFunc(string(prefix), unicode.IsSpace)
	if a.opts.Unit.Measure(utf8.RuneCountInString(out)) < a.opts.MinTruncated {
		return "", false
	}
	return out, true
}
