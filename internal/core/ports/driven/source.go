package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// DocumentSource reads raw documents from outside the corpus.
type DocumentSource interface {
	// Load reads every supported document under paths. Directories are walked
	// recursively. Files that cannot be read are returned as failures, and
	// loading continues.
	Load(ctx context.Context, paths []string) ([]domain.RawDocument, []domain.IngestionError)

	// Watch streams changes under root until ctx is cancelled.
	Watch(ctx context.Context, root string) (<-chan domain.RawDocumentChange, error)
}

// PageFetcher downloads a single document by URL. The format is taken from
// the response's content type, falling back to the URL's extension.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.RawDocument, error)
}
