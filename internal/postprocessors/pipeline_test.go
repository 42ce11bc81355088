package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// stage adapts a function to driven.PostProcessor.
type stage struct {
	name string
	fn   func(in []domain.Chunk) ([]domain.Chunk, error)
}

func (s stage) Name() string { return s.name }

func (s stage) Process(_ context.Context, _ *domain.Document, in []domain.Chunk) ([]domain.Chunk, error) {
	return s.fn(in)
}

func emit(chunks ...domain.Chunk) stage {
	return stage{name: "emit", fn: func([]domain.Chunk) ([]domain.Chunk, error) { return chunks, nil }}
}

func TestPipeline_AddAndLen(t *testing.T) {
	p := NewPipeline()
	assert.Zero(t, p.Len())
	p.Add(emit())
	p.Add(emit())
	assert.Equal(t, 2, p.Len())
}

func TestPipeline_Process(t *testing.T) {
	doc := &domain.Document{ID: "doc", Content: "a b"}
	a := domain.Chunk{ID: "doc:v:00000", DocumentID: "doc", Content: "a"}
	b := domain.Chunk{ID: "doc:v:00001", DocumentID: "doc", Content: "b"}

	upper := stage{name: "upper", fn: func(in []domain.Chunk) ([]domain.Chunk, error) {
		out := make([]domain.Chunk, len(in))
		for i, c := range in {
			c.Content += "!"
			out[i] = c
		}
		return out, nil
	}}

	tests := []struct {
		name    string
		stages  []stage
		want    []string
		wantErr string
	}{
		{name: "no stages", want: nil},
		{name: "stages run in order", stages: []stage{emit(a, b), upper}, want: []string{"a!", "b!"}},
		{
			name:    "stage error names the stage",
			stages:  []stage{{name: "broken", fn: func([]domain.Chunk) ([]domain.Chunk, error) { return nil, errors.New("boom") }}},
			wantErr: "processor broken: boom",
		},
		{
			name:    "chunk from another document",
			stages:  []stage{emit(domain.Chunk{ID: "other:v:00000", DocumentID: "other"})},
			wantErr: "belongs to other",
		},
		{name: "duplicate chunk IDs", stages: []stage{emit(a, a)}, wantErr: "duplicate chunk id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline()
			for _, s := range tt.stages {
				p.Add(s)
			}

			chunks, err := p.Process(context.Background(), doc)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, c := range chunks {
				got = append(got, c.Content)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPipeline_Process_NilDocument(t *testing.T) {
	_, err := NewPipeline(emit()).Process(context.Background(), nil)
	assert.Error(t, err)
}
