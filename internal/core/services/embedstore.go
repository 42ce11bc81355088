package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

const (
	defaultEmbedBatchSize   = 16
	defaultEmbedConcurrency = 4
)

// EmbeddingStore is the corpus: persisted documents and chunks, their vectors,
// and the in-memory snapshot queries run against.
//
// Mutations are serialised by a single writer lock. Embedding happens before
// the lock is taken, so a slow provider never blocks other writers or readers.
// A failed mutation leaves both the persisted tables and the published snapshot
// as they were.
type EmbeddingStore struct {
	store    driven.CorpusStore
	embedder driven.EmbeddingService
	pipeline driven.PostProcessorPipeline

	retry       RetryPolicy
	batchSize   int
	concurrency int
	chunking    string

	mu       sync.Mutex
	current  atomic.Pointer[Snapshot]
	degraded atomic.Pointer[string]
}

// EmbeddingStoreOption configures an EmbeddingStore.
type EmbeddingStoreOption func(*EmbeddingStore)

// WithEmbedRetry sets the retry policy for embedding calls.
func WithEmbedRetry(p RetryPolicy) EmbeddingStoreOption {
	return func(s *EmbeddingStore) {
		s.retry = p
	}
}

// WithEmbedConcurrency sets how many embedding batches run in parallel.
func WithEmbedConcurrency(n int) EmbeddingStoreOption {
	return func(s *EmbeddingStore) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithEmbedBatchSize sets how many chunks go into one EmbedBatch call.
func WithEmbedBatchSize(n int) EmbeddingStoreOption {
	return func(s *EmbeddingStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithChunkingFingerprint records the chunker settings in the corpus meta.
// Opening a corpus cut under other settings rebuilds it.
func WithChunkingFingerprint(fp string) EmbeddingStoreOption {
	return func(s *EmbeddingStore) {
		s.chunking = fp
	}
}

// NewEmbeddingStore creates an embedding store. The pipeline re-chunks
// documents during a rebuild. Call Open before use.
func NewEmbeddingStore(
	store driven.CorpusStore,
	embedder driven.EmbeddingService,
	pipeline driven.PostProcessorPipeline,
	opts ...EmbeddingStoreOption,
) *EmbeddingStore {
	s := &EmbeddingStore{
		store:       store,
		embedder:    embedder,
		pipeline:    pipeline,
		retry:       DefaultRetryPolicy(),
		batchSize:   defaultEmbedBatchSize,
		concurrency: defaultEmbedConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptySnapshot(0, embedder.ModelName()))
	return s
}

// Open loads the persisted corpus and verifies it. An inconsistent index is
// rebuilt from the document table; the store then reports a degraded warning.
func (s *EmbeddingStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger.Section("Corpus Open")

	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return err
	}

	meta, chunks, problems, err := s.loadAndCheck(ctx, docs)
	if err != nil {
		return err
	}

	if len(problems) == 0 {
		// An empty chunk table has no embedding space yet.
		dims, model := meta.Dimensions, meta.Model
		if len(chunks) == 0 {
			dims = 0
		}
		if model == "" {
			model = s.embedder.ModelName()
		}
		s.current.Store(newSnapshot(dims, model, docs, chunks))
		logger.Info("Loaded %d documents, %d chunks (%s, %d dims)", len(docs), len(chunks), model, dims)
		return nil
	}

	for _, p := range problems {
		logger.Warn("index check: %s", p)
	}
	logger.Warn("%v: rebuilding %d documents", domain.ErrIndexCorrupt, len(docs))

	orphans := orphanDocumentIDs(docs, chunks)
	if err := s.rebuildLocked(ctx, docs, orphans); err != nil {
		return fmt.Errorf("rebuild after %w: %w", domain.ErrIndexCorrupt, err)
	}

	msg := fmt.Sprintf("index was inconsistent (%s) and has been rebuilt", problems[0])
	s.degraded.Store(&msg)
	return nil
}

// Snapshot returns the last committed corpus state.
func (s *EmbeddingStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// Degraded returns the degraded-mode warning set by the last Open, if any.
func (s *EmbeddingStore) Degraded() (string, bool) {
	msg := s.degraded.Load()
	if msg == nil {
		return "", false
	}
	return *msg, true
}

// Upsert embeds chunks and atomically replaces every prior chunk of doc.
// On error the corpus is unchanged.
func (s *EmbeddingStore) Upsert(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", domain.ErrInvalidInput)
	}

	embedded, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	dims, err := s.commitDims(ctx, cur, embedded)
	if err != nil {
		return err
	}

	if err := s.store.ReplaceDocument(ctx, doc, embedded); err != nil {
		return fmt.Errorf("%w: replace document %s: %w", domain.ErrIOFailure, doc.ID, err)
	}

	s.current.Store(cur.withDocument(*doc, embedded, dims))
	logger.Debug("Committed %s (%d chunks)", doc.ID, len(embedded))
	return nil
}

// Delete removes a document and all its chunks. Deleting an absent document
// is a no-op and returns false.
func (s *EmbeddingStore) Delete(ctx context.Context, documentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("%w: delete document %s: %w", domain.ErrIOFailure, documentID, err)
	}

	cur := s.current.Load()
	if _, ok := cur.Document(documentID); ok || cur.ChunkCount(documentID) > 0 {
		s.current.Store(cur.withoutDocument(documentID))
		existed = true
	}
	if existed {
		logger.Debug("Deleted %s", documentID)
	}
	return existed, nil
}

// Clear empties the corpus in one store transaction. The next write fixes
// a new embedding space.
func (s *EmbeddingStore) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: clear corpus: %w", domain.ErrIOFailure, err)
	}
	s.current.Store(emptySnapshot(0, s.embedder.ModelName()))
	s.degraded.Store(nil)
	logger.Info("Cleared %d documents", n)
	return n, nil
}

// Query ranks the current snapshot's chunks against vector.
func (s *EmbeddingStore) Query(vector []float32, k int, threshold *float64) ([]domain.RetrievalResult, error) {
	return s.Snapshot().Query(vector, k, threshold)
}

// Verify re-reads the persisted tables and lists every inconsistency found.
func (s *EmbeddingStore) Verify(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return nil, err
	}
	_, _, problems, err := s.loadAndCheck(ctx, docs)
	return problems, err
}

// Rebuild re-chunks and re-embeds every document from the document table.
func (s *EmbeddingStore) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.loadDocuments(ctx)
	if err != nil {
		return err
	}
	var orphans []string
	if chunks, err := s.store.LoadChunks(ctx); err == nil {
		orphans = orphanDocumentIDs(docs, chunks)
	}
	if err := s.rebuildLocked(ctx, docs, orphans); err != nil {
		return err
	}
	s.degraded.Store(nil)
	return nil
}

func (s *EmbeddingStore) loadDocuments(ctx context.Context) (map[string]domain.Document, error) {
	list, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", domain.ErrIOFailure, err)
	}
	docs := make(map[string]domain.Document, len(list))
	for _, d := range list {
		docs[d.ID] = d
	}
	return docs, nil
}

// loadAndCheck reads meta and chunks and checks them against docs and the
// configured embedder. Meta or a chunk table the backend reports as corrupt
// is a problem, not an error.
func (s *EmbeddingStore) loadAndCheck(
	ctx context.Context, docs map[string]domain.Document,
) (driven.CorpusMeta, []domain.Chunk, []string, error) {
	var problems []string

	meta, err := s.store.Meta(ctx)
	switch {
	case errors.Is(err, domain.ErrIndexCorrupt):
		meta = driven.CorpusMeta{}
		problems = append(problems, err.Error())
	case err != nil:
		return meta, nil, nil, fmt.Errorf("%w: read corpus meta: %w", domain.ErrIOFailure, err)
	}

	chunks, err := s.store.LoadChunks(ctx)
	if errors.Is(err, domain.ErrIndexCorrupt) {
		return meta, nil, append(problems, err.Error()), nil
	}
	if err != nil {
		return meta, nil, nil, fmt.Errorf("%w: load chunks: %w", domain.ErrIOFailure, err)
	}

	// Unreadable meta gives nothing to check the chunks against; they are
	// still returned so orphans can be purged.
	if len(problems) > 0 {
		return meta, chunks, problems, nil
	}
	return meta, chunks, checkCorpus(meta, docs, chunks, s.chunking, s.embedder), nil
}

// checkCorpus lists inconsistencies between the tables and the embedder.
func checkCorpus(
	meta driven.CorpusMeta,
	docs map[string]domain.Document,
	chunks []domain.Chunk,
	chunking string,
	embedder driven.EmbeddingService,
) []string {
	var problems []string

	if len(chunks) > 0 {
		if chunking != "" && meta.Chunking != chunking {
			problems = append(problems, fmt.Sprintf("chunking settings changed from %q to %q", meta.Chunking, chunking))
		}
		if meta.Model != "" && meta.Model != embedder.ModelName() {
			problems = append(problems, fmt.Sprintf("embedding model changed from %s to %s", meta.Model, embedder.ModelName()))
		}
		if meta.Dimensions != embedder.Dimensions() {
			problems = append(problems, fmt.Sprintf("corpus has %d dimensions, embedder produces %d", meta.Dimensions, embedder.Dimensions()))
		}
	}

	counts := make(map[string]int, len(docs))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.ID] {
			problems = append(problems, fmt.Sprintf("duplicate chunk %s", c.ID))
		}
		seen[c.ID] = true

		doc, ok := docs[c.DocumentID]
		if !ok {
			problems = append(problems, fmt.Sprintf("chunk %s has no parent document", c.ID))
			continue
		}
		if !strings.HasPrefix(c.ID, doc.ID+":"+doc.Version+":") {
			problems = append(problems, fmt.Sprintf("chunk %s is from a stale version of %s", c.ID, doc.ID))
		}
		if len(c.Embedding) != meta.Dimensions {
			problems = append(problems, fmt.Sprintf("chunk %s has %d dimensions, corpus has %d", c.ID, len(c.Embedding), meta.Dimensions))
		}
		counts[c.DocumentID]++
	}

	for id, d := range docs {
		if strings.TrimSpace(d.Content) != "" && counts[id] == 0 {
			problems = append(problems, fmt.Sprintf("document %s has no chunks", id))
		}
	}
	return problems
}

func orphanDocumentIDs(docs map[string]domain.Document, chunks []domain.Chunk) []string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range chunks {
		if _, ok := docs[c.DocumentID]; !ok && !seen[c.DocumentID] {
			seen[c.DocumentID] = true
			ids = append(ids, c.DocumentID)
		}
	}
	return ids
}

// rebuildLocked regenerates every chunk from docs. Caller holds s.mu.
func (s *EmbeddingStore) rebuildLocked(ctx context.Context, docs map[string]domain.Document, orphans []string) error {
	if s.pipeline == nil {
		return errors.New("rebuild: chunking pipeline not configured")
	}

	logger.Section("Index Rebuild")

	for _, id := range orphans {
		if _, err := s.store.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("%w: purge orphan chunks of %s: %w", domain.ErrIOFailure, id, err)
		}
		logger.Debug("Purged orphan chunks of %s", id)
	}

	meta := s.meta(s.embedder.Dimensions())
	if err := s.store.SetMeta(ctx, meta); err != nil {
		return fmt.Errorf("%w: write corpus meta: %w", domain.ErrIOFailure, err)
	}

	snap := emptySnapshot(meta.Dimensions, meta.Model)
	for _, doc := range sortedDocuments(docs) {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := doc
		d.Version = domain.ContentVersion(d.Content)

		chunks, err := s.pipeline.Process(ctx, &d)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", d.ID, err)
		}
		embedded, err := s.embedChunks(ctx, chunks)
		if err != nil {
			return err
		}
		for _, c := range embedded {
			if len(c.Embedding) != meta.Dimensions {
				return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
					domain.ErrDimensionMismatch, c.ID, len(c.Embedding), meta.Dimensions)
			}
		}
		if err := s.store.ReplaceDocument(ctx, &d, embedded); err != nil {
			return fmt.Errorf("%w: replace document %s: %w", domain.ErrIOFailure, d.ID, err)
		}
		snap = snap.withDocument(d, embedded, meta.Dimensions)
		logger.Debug("Rebuilt %s (%d chunks)", d.SourceID, len(embedded))
	}

	s.current.Store(snap)
	logger.Info("Rebuilt %d documents, %d chunks", snap.DocumentCount(), snap.Len())
	return nil
}

func sortedDocuments(docs map[string]domain.Document) []domain.Document {
	return newSnapshot(0, "", docs, nil).Documents()
}

// commitDims checks the embedded chunks share the corpus dimensionality and
// records it on the first write. Caller holds s.mu.
func (s *EmbeddingStore) commitDims(ctx context.Context, cur *Snapshot, chunks []domain.Chunk) (int, error) {
	dims := cur.Dimensions()
	for _, c := range chunks {
		if dims == 0 {
			dims = len(c.Embedding)
		}
		if len(c.Embedding) != dims {
			return 0, fmt.Errorf("%w: chunk %s has %d dimensions, corpus has %d",
				domain.ErrDimensionMismatch, c.ID, len(c.Embedding), dims)
		}
	}

	if dims != 0 && cur.Dimensions() == 0 {
		meta := s.meta(dims)
		if err := s.store.SetMeta(ctx, meta); err != nil {
			return 0, fmt.Errorf("%w: write corpus meta: %w", domain.ErrIOFailure, err)
		}
		logger.Debug("Corpus dimensionality fixed at %d (%s)", dims, meta.Model)
	}
	return dims, nil
}

func (s *EmbeddingStore) meta(dims int) driven.CorpusMeta {
	return driven.CorpusMeta{Dimensions: dims, Model: s.embedder.ModelName(), Chunking: s.chunking}
}

// embedChunks returns copies of chunks with embeddings filled in. Batches run
// in parallel; the first failure cancels the rest.
func (s *EmbeddingStore) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	if len(out) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(out); start += s.batchSize {
		end := min(start+s.batchSize, len(out))
		batch := out[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}

			vectors, _, err := retry(gctx, s.retry, "embed", func(ctx context.Context) ([][]float32, error) {
				return s.embedder.EmbedBatch(ctx, texts)
			})
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingUnavailable, len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
