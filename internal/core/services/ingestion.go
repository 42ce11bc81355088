package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

const defaultBatchWorkers = 2

// DocumentID derives the document ID for a source identifier. The same
// source always maps to the same document, so re-ingestion replaces it.
func DocumentID(sourceID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID)).String()
}

// IngestionService adds and removes documents.
type IngestionService struct {
	store    *EmbeddingStore
	registry driven.NormaliserRegistry
	pipeline driven.PostProcessorPipeline
	source   driven.DocumentSource
	fetcher  driven.PageFetcher
	workers  int
	now      func() time.Time
}

// NewIngestionService creates an ingestion service. source may be nil, in
// which case IngestPaths is unavailable.
func NewIngestionService(
	store *EmbeddingStore,
	registry driven.NormaliserRegistry,
	pipeline driven.PostProcessorPipeline,
	source driven.DocumentSource,
) *IngestionService {
	return &IngestionService{
		store:    store,
		registry: registry,
		pipeline: pipeline,
		source:   source,
		workers:  defaultBatchWorkers,
		now:      time.Now,
	}
}

// SetWorkers sets how many documents of a batch are ingested in parallel.
func (s *IngestionService) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// SetFetcher enables IngestURLs.
func (s *IngestionService) SetFetcher(f driven.PageFetcher) {
	s.fetcher = f
}

// AddDocument ingests already-normalised text.
func (s *IngestionService) AddDocument(ctx context.Context, sourceID, text string, format domain.Format) (string, error) {
	res, err := s.ingest(ctx, sourceID, text, format)
	if err != nil {
		return "", err
	}
	return res.DocumentID, nil
}

// AddRaw normalises raw bytes, then ingests the text.
func (s *IngestionService) AddRaw(ctx context.Context, raw *domain.RawDocument) (*domain.IngestResult, error) {
	if raw.Format == "" {
		format, ok := domain.FormatFromPath(raw.SourceID)
		if !ok {
			return nil, fmt.Errorf("%w: cannot infer format of %s", domain.ErrUnsupportedFormat, raw.SourceID)
		}
		raw.Format = format
	}

	result, err := s.registry.Normalise(ctx, raw)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, raw.SourceID, result.Document.Content, raw.Format)
}

// ingest chunks and stores one document, skipping unchanged content.
func (s *IngestionService) ingest(
	ctx context.Context, sourceID, text string, format domain.Format,
) (*domain.IngestResult, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, fmt.Errorf("%w: source id required", domain.ErrInvalidInput)
	}
	if format == "" {
		format = domain.FormatText
	}

	id := DocumentID(sourceID)
	version := domain.ContentVersion(text)
	now := s.now()

	doc := domain.Document{
		ID:        id,
		SourceID:  sourceID,
		Format:    format,
		Content:   text,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}

	snap := s.store.Snapshot()
	if existing, ok := snap.Document(id); ok {
		if existing.Version == version && existing.Format == format {
			logger.Debug("Unchanged: %s", sourceID)
			return &domain.IngestResult{
				DocumentID: id,
				SourceID:   sourceID,
				Status:     domain.IngestUnchanged,
				ChunkCount: snap.ChunkCount(id),
			}, nil
		}
		doc.CreatedAt = existing.CreatedAt
	}

	chunks, err := s.pipeline.Process(ctx, &doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", sourceID, err)
	}

	if err := s.store.Upsert(ctx, &doc, chunks); err != nil {
		return nil, err
	}

	status := domain.IngestAdded
	if len(chunks) == 0 {
		status = domain.IngestEmpty
		logger.Warn("%s has no text, stored with zero chunks", sourceID)
	} else {
		logger.Info("Ingested %s (%d chunks)", sourceID, len(chunks))
	}
	return &domain.IngestResult{
		DocumentID: id,
		SourceID:   sourceID,
		Status:     status,
		ChunkCount: len(chunks),
	}, nil
}

// IngestBatch ingests raws with a small worker pool. Each failure is
// collected and never stops the rest of the batch.
func (s *IngestionService) IngestBatch(ctx context.Context, raws []domain.RawDocument) *domain.BatchReport {
	type outcome struct {
		res *domain.IngestResult
		err error
	}
	outcomes := make([]outcome, len(raws))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return nil
			}
			raw := raws[i]
			res, err := s.AddRaw(ctx, &raw)
			outcomes[i] = outcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := &domain.BatchReport{}
	for i, o := range outcomes {
		if o.err != nil {
			logger.Warn("ingest %s: %v", raws[i].SourceID, o.err)
			report.Failures = append(report.Failures, domain.IngestionError{
				SourceID: raws[i].SourceID,
				Err:      classifyIngestError(o.err),
			})
			continue
		}
		report.Results = append(report.Results, *o.res)
	}

	logger.Info("Batch: %d added, %d unchanged, %d empty, %d failed",
		report.Count(domain.IngestAdded), report.Count(domain.IngestUnchanged),
		report.Count(domain.IngestEmpty), len(report.Failures))
	return report
}

// classifyIngestError makes sure every failure carries an ingestion sentinel.
func classifyIngestError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrParseFailure),
		errors.Is(err, domain.ErrIOFailure),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrIOFailure, err)
	}
}

// IngestPaths loads files and directories from the document source and
// ingests them as one batch.
func (s *IngestionService) IngestPaths(ctx context.Context, paths []string) (*domain.BatchReport, error) {
	if s.source == nil {
		return nil, errors.New("document source not configured")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths given", domain.ErrInvalidInput)
	}

	logger.Section("Ingestion")
	raws, failures := s.source.Load(ctx, paths)
	logger.Debug("Loaded %d files, %d unreadable", len(raws), len(failures))

	report := s.IngestBatch(ctx, raws)
	report.Failures = append(failures, report.Failures...)
	return report, nil
}

// IngestURLs downloads pages and ingests them as one batch. A page that
// cannot be fetched is reported alongside the ingestion failures.
func (s *IngestionService) IngestURLs(ctx context.Context, urls []string) (*domain.BatchReport, error) {
	if s.fetcher == nil {
		return nil, errors.New("page fetcher not configured")
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no urls given", domain.ErrInvalidInput)
	}

	logger.Section("Ingestion")
	var (
		raws     []domain.RawDocument
		failures []domain.IngestionError
	)
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := s.fetcher.Fetch(ctx, u)
		if err != nil {
			logger.Warn("fetch %s: %v", u, err)
			failures = append(failures, domain.IngestionError{SourceID: u, Err: classifyIngestError(err)})
			continue
		}
		raws = append(raws, *raw)
	}
	logger.Debug("Fetched %d pages, %d failed", len(raws), len(failures))

	report := s.IngestBatch(ctx, raws)
	report.Failures = append(failures, report.Failures...)
	return report, nil
}

// Watch applies changes from the document source to the corpus until ctx
// is cancelled. A failed change is reported and never stops the watch.
func (s *IngestionService) Watch(ctx context.Context, root string, onChange func(driving.WatchEvent)) error {
	if s.source == nil {
		return errors.New("document source not configured")
	}

	changes, err := s.source.Watch(ctx, root)
	if err != nil {
		return err
	}

	for change := range changes {
		ev := s.applyChange(ctx, change)
		if ev.Err != nil {
			logger.Warn("%s %s: %v", change.Type, ev.SourceID, ev.Err)
		}
		if onChange != nil {
			onChange(ev)
		}
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *IngestionService) applyChange(ctx context.Context, change domain.RawDocumentChange) driving.WatchEvent {
	ev := driving.WatchEvent{Change: change.Type, SourceID: change.Document.SourceID}

	if change.Type == domain.ChangeDeleted {
		ev.Err = s.RemoveSource(ctx, change.Document.SourceID)
		return ev
	}

	raw := change.Document
	res, err := s.AddRaw(ctx, &raw)
	if err != nil {
		ev.Err = classifyIngestError(err)
		return ev
	}
	ev.Result = res
	return ev
}

// RemoveDocument deletes a document and its chunks. Absent IDs are a no-op.
func (s *IngestionService) RemoveDocument(ctx context.Context, documentID string) error {
	existed, err := s.store.Delete(ctx, documentID)
	if err != nil {
		return err
	}
	if existed {
		logger.Info("Removed %s", documentID)
	} else {
		logger.Debug("Remove %s: not present", documentID)
	}
	return nil
}

// RemoveSource deletes the document ingested from sourceID.
func (s *IngestionService) RemoveSource(ctx context.Context, sourceID string) error {
	return s.RemoveDocument(ctx, DocumentID(sourceID))
}

// RemoveAll deletes every document and chunk in one store transaction.
func (s *IngestionService) RemoveAll(ctx context.Context) (int, error) {
	return s.store.Clear(ctx)
}

// List returns a summary of every document, ordered by source.
func (s *IngestionService) List(_ context.Context) ([]driving.DocumentSummary, error) {
	snap := s.store.Snapshot()
	docs := snap.Documents()

	out := make([]driving.DocumentSummary, len(docs))
	for i, d := range docs {
		out[i] = summarise(snap, d)
	}
	return out, nil
}

// Get returns the summary of one document, looked up by ID or source.
func (s *IngestionService) Get(_ context.Context, documentID string) (*driving.DocumentSummary, error) {
	snap := s.store.Snapshot()
	d, ok := snap.Document(documentID)
	if !ok {
		d, ok = snap.DocumentBySource(documentID)
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	summary := summarise(snap, d)
	return &summary, nil
}

func summarise(snap *Snapshot, d domain.Document) driving.DocumentSummary {
	return driving.DocumentSummary{
		ID:         d.ID,
		SourceID:   d.SourceID,
		Format:     d.Format,
		Version:    d.Version,
		Characters: len([]rune(d.Content)),
		ChunkCount: snap.ChunkCount(d.ID),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}
