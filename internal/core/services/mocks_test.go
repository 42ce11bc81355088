package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/postprocessors"
)

// fakeEmbedder is a deterministic bag-of-words embedder. Identical word
// multisets map to identical vectors.
type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	model    string
	failures int   // transient failures left before calls succeed
	err      error // returned on every call when set
	calls    int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dims: 64, model: "fake-embed"}
}

func (e *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dims)]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		n := float32(math.Sqrt(sum))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

func (e *fakeEmbedder) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return e.err
	}
	if e.failures > 0 {
		e.failures--
		return fmt.Errorf("%w: connection refused", domain.ErrEmbeddingUnavailable)
	}
	return nil
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }
func (e *fakeEmbedder) ModelName() string { return e.model }
func (e *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (e *fakeEmbedder) Close() error { return nil }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEmbedder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *fakeEmbedder) setFailures(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = n
}

// scriptedLLM returns the scripted errors in order, then answer.
type scriptedLLM struct {
	mu      sync.Mutex
	errs    []error
	answer  string
	block   bool   // wait for the context instead of answering
	partial string // streamed before a scripted error
	prompts []string
	models  []string
}

func (l *scriptedLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.models = append(l.models, opts.Model)
	var err error
	if len(l.errs) > 0 {
		err, l.errs = l.errs[0], l.errs[1:]
	}
	block := l.block
	l.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		if l.partial != "" && opts.OnToken != nil {
			opts.OnToken(l.partial)
		}
		return "", err
	}
	if opts.OnToken != nil {
		for _, tok := range strings.SplitAfter(l.answer, " ") {
			opts.OnToken(tok)
		}
	}
	return l.answer, nil
}

func (l *scriptedLLM) ModelName() string { return "fake-llm" }
func (l *scriptedLLM) Ping(_ context.Context) error { return nil }
func (l *scriptedLLM) Close() error { return nil }

func (l *scriptedLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

func (l *scriptedLLM) lastPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return ""
	}
	return l.prompts[len(l.prompts)-1]
}

var errUnavailable = fmt.Errorf("%w: 503 service unavailable", domain.ErrGenerationUnavailable)

// fakeRegistry normalises text and markdown by passing bytes through.
type fakeRegistry struct{}

func (fakeRegistry) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	switch raw.Format {
	case domain.FormatText, domain.FormatMarkdown:
		return &driven.NormaliseResult{Document: domain.Document{Content: string(raw.Content)}}, nil
	case domain.FormatPDF:
		return nil, fmt.Errorf("%w: bad xref table", domain.ErrParseFailure)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, raw.Format)
	}
}

func (fakeRegistry) Register(driven.Normaliser) {}

func (fakeRegistry) SupportedFormats() []domain.Format {
	return []domain.Format{domain.FormatText, domain.FormatMarkdown}
}

// fakeSource serves fixed documents and failures. Watch replays changes
// and then closes the stream.
type fakeSource struct {
	docs     []domain.RawDocument
	failures []domain.IngestionError
	changes  []domain.RawDocumentChange
	watchErr error
}

func (s *fakeSource) Load(_ context.Context, _ []string) ([]domain.RawDocument, []domain.IngestionError) {
	return s.docs, s.failures
}

func (s *fakeSource) Watch(_ context.Context, _ string) (<-chan domain.RawDocumentChange, error) {
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	ch := make(chan domain.RawDocumentChange, len(s.changes))
	for _, c := range s.changes {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// fakeFetcher serves pages from a map; other URLs fail with ErrIOFailure.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*domain.RawDocument, error) {
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: fetching %s: 404 Not Found", domain.ErrIOFailure, url)
	}
	return &domain.RawDocument{SourceID: url, Format: domain.FormatMarkdown, Content: []byte(page)}, nil
}

// testChunking produces one chunk per 80-character paragraph.
var testChunking = domain.ChunkingSettings{Size: 100, Overlap: 10, Tolerance: 60, Boundary: domain.BoundaryParagraph}

// fastRetry retries without sleeping.
var fastRetry = RetryPolicy{MaxAttempts: 3}

type testEnv struct {
	corpus   *memory.CorpusStore
	embedder *fakeEmbedder
	pipeline driven.PostProcessorPipeline
	store    *EmbeddingStore
	ingest   *IngestionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		corpus:   memory.NewCorpusStore(),
		embedder: newFakeEmbedder(),
	}
	pipeline, err := postprocessors.NewDefaultPipeline(testChunking)
	require.NoError(t, err)
	env.pipeline = pipeline
	env.store = env.openStore(t, env.embedder)
	env.ingest = NewIngestionService(env.store, fakeRegistry{}, pipeline, nil)
	return env
}

// openStore opens a fresh EmbeddingStore over the same persisted corpus.
func (env *testEnv) openStore(t *testing.T, embedder driven.EmbeddingService) *EmbeddingStore {
	t.Helper()
	store := NewEmbeddingStore(env.corpus, embedder, env.pipeline, WithEmbedRetry(fastRetry), WithEmbedBatchSize(2))
	require.NoError(t, store.Open(context.Background()))
	return store
}

func (env *testEnv) orchestrator(llm driven.LLMService, opts ...OrchestratorOption) *Orchestrator {
	s := domain.DefaultSettings()
	opts = append([]OrchestratorOption{
		WithGenerationRetry(fastRetry),
		WithQueryEmbedRetry(fastRetry),
		WithPromptTurns(3),
	}, opts...)
	return NewOrchestrator(
		env.store,
		env.embedder,
		llm,
		NewRanker(RankOptionsFor(s.Retrieval)),
		NewAssembler(AssembleOptionsFor(s.Context, s.Retrieval)),
		NewPromptBuilder(domain.ProjectSettings{Name: "demo"}, nil),
		opts...,
	)
}

// paragraph pads s with spaces to 80 characters.
func paragraph(s string) string {
	return s + strings.Repeat(" ", 80-len(s))
}

// threeParagraphs is a document the test chunking splits into exactly three
// chunks, one per paragraph.
var threeParagraphs = strings.Join([]string{
	paragraph("Installation requires golang toolchain and a working compiler."),
	paragraph("Configuration lives in toml files under the home directory."),
	paragraph("Troubleshooting tips: restart daemon, check sockets, inspect logs."),
}, "\n\n")
