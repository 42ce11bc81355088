package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// IngestionService manages the documents in the corpus.
type IngestionService interface {
	// AddDocument ingests already-normalised text and returns the document ID.
	// Re-adding the same source replaces its chunks; unchanged content is a no-op.
	AddDocument(ctx context.Context, sourceID, text string, format domain.Format) (string, error)

	// AddRaw normalises raw bytes through the format registry, then ingests them.
	AddRaw(ctx context.Context, raw *domain.RawDocument) (*domain.IngestResult, error)

	// IngestBatch ingests many raw documents. A failing document is reported
	// in the batch report and never aborts the rest.
	IngestBatch(ctx context.Context, raws []domain.RawDocument) *domain.BatchReport

	// IngestPaths walks files and directories and ingests every supported file.
	IngestPaths(ctx context.Context, paths []string) (*domain.BatchReport, error)

	// IngestURLs downloads each page and ingests it, keyed by its URL.
	IngestURLs(ctx context.Context, urls []string) (*domain.BatchReport, error)

	// Watch keeps the corpus in sync with a directory until ctx is cancelled:
	// created and modified files are re-ingested, deleted files removed.
	// onChange, if set, is called after each change is applied.
	Watch(ctx context.Context, root string, onChange func(WatchEvent)) error

	// RemoveDocument deletes a document and all its chunks.
	// Removing an absent document is a no-op.
	RemoveDocument(ctx context.Context, documentID string) error

	// RemoveSource deletes the document ingested from sourceID, if any.
	RemoveSource(ctx context.Context, sourceID string) error

	// RemoveAll empties the corpus and returns how many documents it held.
	RemoveAll(ctx context.Context) (int, error)

	// List returns a summary of every document.
	List(ctx context.Context) ([]DocumentSummary, error)

	// Get returns the summary of one document.
	Get(ctx context.Context, documentID string) (*DocumentSummary, error)
}

// DocumentSummary provides a standardised view of a stored document.
type DocumentSummary struct {
	// ID is the unique document identifier.
	ID string

	// SourceID is where the document came from.
	SourceID string

	// Format is the original format tag.
	Format domain.Format

	// Version is the content revision tag.
	Version string

	// Characters is the normalised text length.
	Characters int

	// ChunkCount is the number of chunks.
	ChunkCount int

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document was last changed.
	UpdatedAt time.Time
}

// WatchEvent reports one applied (or failed) change from Watch.
type WatchEvent struct {
	// Change is the observed filesystem change.
	Change domain.ChangeType

	// SourceID is the affected file.
	SourceID string

	// Result is set for created and updated files that ingested successfully.
	Result *domain.IngestResult

	// Err is set when applying the change failed.
	Err error
}
