// Package postprocessors turns normalised documents into chunks through an
// ordered chain of processors.
package postprocessors

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline feeds each processor the previous one's chunks. The first
// processor starts from nil and is expected to create them.
type Pipeline struct {
	stages []driven.PostProcessor
}

// NewPipeline creates a pipeline that runs stages in order.
func NewPipeline(stages ...driven.PostProcessor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Add appends a stage.
func (p *Pipeline) Add(stage driven.PostProcessor) {
	p.stages = append(p.stages, stage)
}

// Len reports the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Process runs doc through every stage and checks the result: each chunk
// must belong to doc and chunk IDs must be unique.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}

	var chunks []domain.Chunk
	for _, stage := range p.stages {
		out, err := stage.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", stage.Name(), err)
		}
		chunks = out
	}

	ids := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return nil, fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocumentID, doc.ID)
		}
		if _, dup := ids[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %s", c.ID)
		}
		ids[c.ID] = struct{}{}
	}
	return chunks, nil
}
