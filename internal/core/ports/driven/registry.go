package driven

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// NormaliserRegistry maps format tags to normalisers.
// Resolution happens once per document at ingestion time.
type NormaliserRegistry interface {
	// Normalise transforms a raw document using the best matching normaliser.
	// Fails with domain.ErrUnsupportedFormat when nothing handles the format.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedFormats returns all formats that can be normalised.
	SupportedFormats() []domain.Format
}
