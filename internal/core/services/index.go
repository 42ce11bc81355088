package services

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// IndexService exposes corpus maintenance.
type IndexService struct {
	store   *EmbeddingStore
	backend string
}

// NewIndexService creates an index service.
func NewIndexService(store *EmbeddingStore, backend string) *IndexService {
	return &IndexService{store: store, backend: backend}
}

// Stats summarises the current snapshot.
func (s *IndexService) Stats(_ context.Context) (*domain.IndexStats, error) {
	snap := s.store.Snapshot()
	_, degraded := s.store.Degraded()
	return &domain.IndexStats{
		Documents:  snap.DocumentCount(),
		Chunks:     snap.Len(),
		Dimensions: snap.Dimensions(),
		Model:      snap.Model(),
		Backend:    s.backend,
		Degraded:   degraded,
	}, nil
}

// Verify lists inconsistencies in the persisted tables.
func (s *IndexService) Verify(ctx context.Context) ([]string, error) {
	return s.store.Verify(ctx)
}

// Rebuild regenerates every chunk from the document table.
func (s *IndexService) Rebuild(ctx context.Context) error {
	return s.store.Rebuild(ctx)
}
