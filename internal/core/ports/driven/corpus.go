package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// CorpusStore persists the document table and the chunk table.
//
// Document-level replace and delete are atomic: a reader of the store never
// sees a document with a mix of old and new chunks.
type CorpusStore interface {
	// Meta returns corpus-wide metadata. A fresh corpus returns the zero value.
	Meta(ctx context.Context) (CorpusMeta, error)

	// SetMeta records corpus-wide metadata.
	SetMeta(ctx context.Context, meta CorpusMeta) error

	// ReplaceDocument stores doc and swaps its chunk set for chunks in one unit.
	ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// DeleteDocument removes a document and its chunks.
	// Returns false with no error when the document did not exist.
	DeleteDocument(ctx context.Context, id string) (bool, error)

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound when absent.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns every document ordered by source identifier.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// LoadChunks returns every chunk with its embedding, ordered by chunk ID.
	LoadChunks(ctx context.Context) ([]domain.Chunk, error)

	// Clear removes every document, chunk and the corpus metadata in one
	// unit, returning how many documents were removed.
	Clear(ctx context.Context) (int, error)

	// Name identifies the backend ("sqlite", "file", "memory").
	Name() string

	// Close releases resources.
	Close() error
}

// CorpusMeta describes the embedding space a corpus was built in.
type CorpusMeta struct {
	// Dimensions is the fixed vector size. Zero until the first chunk is stored.
	Dimensions int

	// Model is the embedding model that produced the stored vectors.
	Model string

	// Chunking fingerprints the chunker settings the chunks were cut with.
	// Empty for corpora written before it was recorded.
	Chunking string
}
