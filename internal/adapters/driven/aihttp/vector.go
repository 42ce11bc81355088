package aihttp

import (
	"fmt"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// Vector narrows a decoded embedding to float32. A length other than dims
// is domain.ErrDimensionMismatch: the provider serves a different model than
// the one configured.
func Vector(model string, values []float64, dims int) ([]float32, error) {
	if len(values) != dims {
		return nil, fmt.Errorf("%w: model %s returned %d dimensions, configured %d",
			domain.ErrDimensionMismatch, model, len(values), dims)
	}
	v := make([]float32, len(values))
	for i, x := range values {
		v[i] = float32(x)
	}
	return v, nil
}

// Dimensions returns override if set, else the known size of model, else
// fallback.
func Dimensions(model string, override, fallback int) int {
	if override > 0 {
		return override
	}
	if d, ok := domain.EmbeddingDimensions()[model]; ok {
		return d
	}
	return fallback
}
