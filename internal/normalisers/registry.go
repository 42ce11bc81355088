package normalisers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry maps format tags to normalisers, ordered by priority.
type Registry struct {
	mu       sync.RWMutex
	byFormat map[domain.Format][]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFormat: make(map[domain.Format][]driven.Normaliser)}
}

// Register adds a normaliser for every format it supports.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range n.SupportedFormats() {
		list := append(r.byFormat[f], n)
		// Stable keeps registration order among equal priorities
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() > list[j].Priority() })
		r.byFormat[f] = list
	}
}

// SupportedFormats returns all registered formats, sorted.
func (r *Registry) SupportedFormats() []domain.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]domain.Format, 0, len(r.byFormat))
	for f := range r.byFormat {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Normalise runs the preferred normaliser for raw.Format.
// Failures other than cancellation are reported as domain.ErrParseFailure.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	list := r.byFormat[raw.Format]
	r.mu.RUnlock()

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, raw.Format)
	}

	result, err := list[0].Normalise(ctx, raw)
	if err != nil {
		if errors.Is(err, domain.ErrParseFailure) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParseFailure, raw.SourceID, err)
	}
	return result, nil
}
