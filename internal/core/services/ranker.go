package services

import (
	"strings"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// RankOptions configure a Ranker.
type RankOptions struct {
	// TopK is the maximum number of results returned.
	TopK int

	// PerDocumentCap limits how many results one document may contribute.
	// Zero disables the cap.
	PerDocumentCap int

	// Threshold excludes results scoring below it when set.
	Threshold *float64

	// DedupeContent drops a result whose chunk text equals a higher-ranked one.
	DedupeContent bool
}

// RankOptionsFor builds ranker options from settings.
func RankOptionsFor(r domain.RetrievalSettings) RankOptions {
	opts := RankOptions{
		TopK:           r.TopK,
		PerDocumentCap: r.PerDocumentCap,
		DedupeContent:  r.DedupeContent,
	}
	if r.HasThreshold {
		t := r.Threshold
		opts.Threshold = &t
	}
	return opts
}

// Ranker turns a query vector into a ranked, capped result list.
type Ranker struct {
	opts RankOptions
}

// NewRanker creates a ranker.
func NewRanker(opts RankOptions) *Ranker {
	return &Ranker{opts: opts}
}

// Rank queries snap and post-filters the full similarity ranking. The
// per-document cap is applied after ranking, so a capped document yields its
// slot to the next best chunk of another document. topK overrides the
// configured TopK when positive.
func (r *Ranker) Rank(snap *Snapshot, vector []float32, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.opts.TopK
	}

	ranked, err := snap.Query(vector, 0, r.opts.Threshold)
	if err != nil {
		return nil, err
	}
	return r.filter(snap, ranked, topK), nil
}

// filter applies dedupe and the per-document cap to an already sorted list.
func (r *Ranker) filter(snap *Snapshot, ranked []domain.RetrievalResult, topK int) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, min(topK, len(ranked)))
	perDoc := map[string]int{}
	seenText := map[string]bool{}

	for _, res := range ranked {
		if topK > 0 && len(out) >= topK {
			break
		}
		if r.opts.Threshold != nil && res.Score < *r.opts.Threshold {
			continue
		}
		if r.opts.PerDocumentCap > 0 && perDoc[res.DocumentID] >= r.opts.PerDocumentCap {
			continue
		}
		if r.opts.DedupeContent {
			if c, ok := snap.Chunk(res.ChunkID); ok {
				key := strings.Join(strings.Fields(c.Content), " ")
				if seenText[key] {
					continue
				}
				seenText[key] = true
			}
		}

		perDoc[res.DocumentID]++
		out = append(out, res)
	}

	SortResults(out)
	return out
}
