package services

import (
	"math"
	"sort"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// Snapshot is an immutable view of the corpus at one commit.
// Readers hold a *Snapshot for the duration of a question and never observe
// a later write. Writers derive a new Snapshot and publish it atomically.
type Snapshot struct {
	dims  int
	model string

	docs   map[string]domain.Document
	chunks []domain.Chunk // ordered by ID
	norms  []float64
	byID   map[string]int
	byDoc  map[string][]int
}

func emptySnapshot(dims int, model string) *Snapshot {
	return &Snapshot{
		dims:  dims,
		model: model,
		docs:  map[string]domain.Document{},
		byID:  map[string]int{},
		byDoc: map[string][]int{},
	}
}

// newSnapshot indexes docs and chunks. Chunks need not be sorted.
func newSnapshot(dims int, model string, docs map[string]domain.Document, chunks []domain.Chunk) *Snapshot {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })

	s := &Snapshot{
		dims:   dims,
		model:  model,
		docs:   docs,
		chunks: chunks,
		norms:  make([]float64, len(chunks)),
		byID:   make(map[string]int, len(chunks)),
		byDoc:  make(map[string][]int, len(docs)),
	}
	for i := range chunks {
		s.norms[i] = norm(chunks[i].Embedding)
		s.byID[chunks[i].ID] = i
		s.byDoc[chunks[i].DocumentID] = append(s.byDoc[chunks[i].DocumentID], i)
	}
	return s
}

// withDocument returns a copy with doc's chunks replaced.
func (s *Snapshot) withDocument(doc domain.Document, chunks []domain.Chunk, dims int) *Snapshot {
	docs := make(map[string]domain.Document, len(s.docs)+1)
	for id, d := range s.docs {
		docs[id] = d
	}
	docs[doc.ID] = doc

	next := make([]domain.Chunk, 0, len(s.chunks)+len(chunks))
	for _, c := range s.chunks {
		if c.DocumentID != doc.ID {
			next = append(next, c)
		}
	}
	next = append(next, chunks...)
	return newSnapshot(dims, s.model, docs, next)
}

// withoutDocument returns a copy with the document and its chunks removed.
func (s *Snapshot) withoutDocument(id string) *Snapshot {
	docs := make(map[string]domain.Document, len(s.docs))
	for docID, d := range s.docs {
		if docID != id {
			docs[docID] = d
		}
	}

	next := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if c.DocumentID != id {
			next = append(next, c)
		}
	}
	return newSnapshot(s.dims, s.model, docs, next)
}

// Dimensions returns the fixed vector size, or zero for a corpus never written.
func (s *Snapshot) Dimensions() int {
	return s.dims
}

// Model returns the embedding model the vectors came from.
func (s *Snapshot) Model() string {
	return s.model
}

// Len returns the number of chunks.
func (s *Snapshot) Len() int {
	return len(s.chunks)
}

// DocumentCount returns the number of documents.
func (s *Snapshot) DocumentCount() int {
	return len(s.docs)
}

// Chunk looks up a chunk by ID.
func (s *Snapshot) Chunk(id string) (domain.Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Chunk{}, false
	}
	return s.chunks[i], true
}

// Document looks up a document by ID.
func (s *Snapshot) Document(id string) (domain.Document, bool) {
	d, ok := s.docs[id]
	return d, ok
}

// DocumentBySource finds the document ingested from sourceID.
func (s *Snapshot) DocumentBySource(sourceID string) (domain.Document, bool) {
	for _, d := range s.docs {
		if d.SourceID == sourceID {
			return d, true
		}
	}
	return domain.Document{}, false
}

// Documents returns every document ordered by source identifier.
func (s *Snapshot) Documents() []domain.Document {
	docs := make([]domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].SourceID != docs[j].SourceID {
			return docs[i].SourceID < docs[j].SourceID
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Chunks returns a document's chunks in sequence order.
func (s *Snapshot) Chunks(documentID string) []domain.Chunk {
	idx := s.byDoc[documentID]
	out := make([]domain.Chunk, len(idx))
	for i, j := range idx {
		out[i] = s.chunks[j]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// ChunkCount returns how many chunks a document has.
func (s *Snapshot) ChunkCount(documentID string) int {
	return len(s.byDoc[documentID])
}

// Query returns up to k chunks ranked by cosine similarity descending, ties
// broken by ascending chunk ID. k <= 0 returns every chunk. Results scoring
// below threshold, when given, are excluded.
func (s *Snapshot) Query(vector []float32, k int, threshold *float64) ([]domain.RetrievalResult, error) {
	if len(s.chunks) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if len(vector) != s.dims {
		return nil, domain.ErrDimensionMismatch
	}

	qn := norm(vector)
	results := make([]domain.RetrievalResult, 0, len(s.chunks))
	for i := range s.chunks {
		score := cosine(vector, s.chunks[i].Embedding, qn, s.norms[i])
		if threshold != nil && score < *threshold {
			continue
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:    s.chunks[i].ID,
			DocumentID: s.chunks[i].DocumentID,
			Score:      score,
		})
	}

	SortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SortResults orders by score descending, then chunk ID ascending.
func SortResults(results []domain.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := dot / (na * nb)
	// Clamp rounding noise so identical vectors score exactly 1.
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
