package postprocessors

import (
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/postprocessors/chunker"
)

// RegisterDefaults adds the built-in processors to r.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
}

// NewDefaultPipeline builds the chunking pipeline the settings describe.
func NewDefaultPipeline(c domain.ChunkingSettings) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)
	return r.BuildPipeline(domain.PipelineConfigFor(c))
}

// buildChunker reads chunk_size, overlap, tolerance and boundary from cfg.
// A missing key keeps the chunker's default; a zero or absent chunk_size
// always does.
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option
	if size, _ := intSetting(cfg, "chunk_size"); size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := intSetting(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	if tolerance, ok := intSetting(cfg, "tolerance"); ok {
		opts = append(opts, chunker.WithTolerance(tolerance))
	}
	if b, ok := cfg["boundary"].(string); ok {
		opts = append(opts, chunker.WithBoundary(domain.Boundary(b)))
	}
	return chunker.New(opts...), nil
}

// intSetting reads an integer that may have been decoded from TOML or JSON.
func intSetting(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
