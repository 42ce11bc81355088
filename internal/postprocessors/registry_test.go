package postprocessors

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Has("mock"))

	r.Register("mock", func(_ map[string]any) (driven.PostProcessor, error) {
		return stage{name: "mock"}, nil
	})

	assert.True(t, r.Has("mock"))
	p, err := r.Build("mock", nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}

func TestRegistry_Build_UnknownProcessor(t *testing.T) {
	_, err := NewRegistry().Build("missing", nil)
	assert.ErrorContains(t, err, "unknown processor")
}

func TestRegistry_Names_Sorted(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		r.Register(n, nil)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

func TestRegistry_BuildPipeline(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	t.Run("empty config", func(t *testing.T) {
		_, err := r.BuildPipeline(domain.PipelineConfig{})
		assert.Error(t, err)
	})

	t.Run("unknown processor", func(t *testing.T) {
		_, err := r.BuildPipeline(domain.PipelineConfig{Processors: []string{"nope"}})
		assert.Error(t, err)
	})

	t.Run("chunker from settings", func(t *testing.T) {
		p, err := r.BuildPipeline(domain.PipelineConfigFor(domain.ChunkingSettings{
			Size: 100, Overlap: 10, Tolerance: 20, Boundary: domain.BoundaryNone,
		}))
		require.NoError(t, err)
		require.Equal(t, 1, p.Len())

		doc := &domain.Document{ID: "doc", Version: "v", Content: strings.Repeat("x", 250)}
		chunks, err := p.Process(context.Background(), doc)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, 100, chunks[0].End)
		assert.Equal(t, 90, chunks[1].Start)
	})
}

func TestNewDefaultPipeline(t *testing.T) {
	p, err := NewDefaultPipeline(domain.DefaultSettings().Chunking)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}

func TestBuildChunker_NilConfig(t *testing.T) {
	p, err := buildChunker(nil)
	require.NoError(t, err)
	assert.Equal(t, "chunker", p.Name())
}

func TestIntSetting(t *testing.T) {
	cfg := map[string]any{
		"int":     5,
		"int64":   int64(6),
		"float64": float64(7),
		"string":  "8",
	}
	tests := []struct {
		key    string
		want   int
		wantOK bool
	}{
		{"int", 5, true},
		{"int64", 6, true},
		{"float64", 7, true},
		{"string", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		got, ok := intSetting(cfg, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
		assert.Equal(t, tt.wantOK, ok, tt.key)
	}

	_, ok := intSetting(nil, "int")
	assert.False(t, ok)
}
