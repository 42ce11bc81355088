package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// IndexService maintains the chunk index.
type IndexService interface {
	// Stats summarises the corpus.
	Stats(ctx context.Context) (*domain.IndexStats, error)

	// Verify checks the persisted tables for consistency and returns each problem found.
	Verify(ctx context.Context) ([]string, error)

	// Rebuild re-chunks and re-embeds every document from the document table.
	Rebuild(ctx context.Context) error
}
