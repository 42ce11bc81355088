package domain

// NoContextMarker is emitted by the context assembler when nothing usable
// was retrieved. The orchestrator switches to the fallback template on it.
const NoContextMarker = "<<NO_CONTEXT>>"

// Query is an ephemeral retrieval request. It is never persisted.
type Query struct {
	// Text is the question as asked.
	Text string

	// Embedding is the query vector, filled in by the orchestrator.
	Embedding []float32

	// TopK is the maximum number of results.
	TopK int

	// Threshold excludes results scoring below it when set.
	Threshold *float64
}

// RetrievalResult is a single scored chunk produced by a query.
type RetrievalResult struct {
	// ChunkID identifies the matched chunk.
	ChunkID string

	// DocumentID is the parent document of the chunk.
	DocumentID string

	// Score is the cosine similarity in [-1, 1].
	Score float64
}

// Citation describes one chunk admitted into an assembled context.
type Citation struct {
	// Index is the 1-based reference number used in the prompt.
	Index int

	ChunkID    string
	DocumentID string
	SourceID   string
	Score      float64

	// Truncated is true when only a prefix of the chunk text fit the budget.
	Truncated bool
}

// BudgetUnit is the measure a context budget is expressed in.
type BudgetUnit string

// Available budget units.
const (
	BudgetUnitChars  BudgetUnit = "chars"
	BudgetUnitTokens BudgetUnit = "tokens"
)

// IsValid returns true if the unit is recognised.
func (u BudgetUnit) IsValid() bool {
	return u == BudgetUnitChars || u == BudgetUnitTokens
}

// Measure returns the size of n characters in this unit.
// Tokens are estimated at four characters each, rounded up.
func (u BudgetUnit) Measure(chars int) int {
	if u == BudgetUnitTokens {
		return (chars + 3) / 4
	}
	return chars
}

// AssembledContext is the bounded prompt context built from ranked results.
type AssembledContext struct {
	// Text is the concatenated context, or NoContextMarker.
	Text string

	// Citations lists the sources in inclusion order.
	Citations []Citation

	// Size is the measured size of Text in Unit. Zero for the marker.
	Size int

	// Budget is the limit Size was checked against.
	Budget int

	// Unit is the budget unit.
	Unit BudgetUnit
}

// HasContext reports whether usable context was assembled.
func (c AssembledContext) HasContext() bool {
	return c.Text != NoContextMarker && len(c.Citations) > 0
}

// ChunkIDs returns the cited chunk ids in inclusion order.
func (c AssembledContext) ChunkIDs() []string {
	ids := make([]string, len(c.Citations))
	for i, cit := range c.Citations {
		ids[i] = cit.ChunkID
	}
	return ids
}

// IndexStats summarises the corpus.
type IndexStats struct {
	Documents  int
	Chunks     int
	Dimensions int
	Model      string
	Backend    string

	// Degraded is true when the last open needed a rebuild.
	Degraded bool
}
