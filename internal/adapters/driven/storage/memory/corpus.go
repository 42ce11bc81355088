package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure CorpusStore implements the interface.
var _ driven.CorpusStore = (*CorpusStore)(nil)

// CorpusStore is an in-memory implementation of driven.CorpusStore.
// Nothing survives the process; used for tests and ephemeral runs.
type CorpusStore struct {
	mu        sync.RWMutex
	meta      driven.CorpusMeta
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
}

// NewCorpusStore creates a new in-memory corpus store.
func NewCorpusStore() *CorpusStore {
	return &CorpusStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// Meta returns the corpus metadata.
func (s *CorpusStore) Meta(_ context.Context) (driven.CorpusMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, nil
}

// SetMeta records the corpus metadata.
func (s *CorpusStore) SetMeta(_ context.Context, meta driven.CorpusMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	return nil
}

// ReplaceDocument stores doc and its chunk set.
func (s *CorpusStore) ReplaceDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	copied := make([]domain.Chunk, len(chunks))
	copy(copied, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	s.chunks[doc.ID] = copied
	return nil
}

// DeleteDocument removes a document and its chunks.
func (s *CorpusStore) DeleteDocument(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.documents[id]
	delete(s.documents, id)
	delete(s.chunks, id)
	return ok, nil
}

// Clear removes everything.
func (s *CorpusStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.documents)
	s.meta = driven.CorpusMeta{}
	s.documents = make(map[string]domain.Document)
	s.chunks = make(map[string][]domain.Chunk)
	return n, nil
}

// GetDocument retrieves a document by ID.
func (s *CorpusStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns every document ordered by source.
func (s *CorpusStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.documents))
	for _, d := range s.documents {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceID < docs[j].SourceID })
	return docs, nil
}

// LoadChunks returns every chunk ordered by ID.
func (s *CorpusStore) LoadChunks(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.Chunk
	for _, chunks := range s.chunks {
		all = append(all, chunks...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// PutChunks stores chunks without touching the document table.
// Used to simulate a damaged index.
func (s *CorpusStore) PutChunks(documentID string, chunks []domain.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentID] = chunks
}

// Name identifies the backend.
func (s *CorpusStore) Name() string {
	return "memory"
}

// Close is a no-op.
func (s *CorpusStore) Close() error {
	return nil
}
