package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/patrickmn/go-cache"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

const (
	queryCacheTTL     = 10 * time.Minute
	queryCacheCleanup = 15 * time.Minute
)

// StateObserver is notified of every state transition of a question.
type StateObserver func(from, to domain.QuestionState)

// Question is one question handed to the orchestrator.
type Question struct {
	Text string

	// TopK overrides the ranker's TopK when positive.
	TopK int

	// Model overrides the generation model when non-empty.
	Model string

	// OnToken receives streamed answer text.
	OnToken func(token string)
}

// Orchestrator drives one question at a time through
// IDLE, EMBEDDING_QUERY, RETRIEVING, ASSEMBLING, GENERATING, then DONE or FAILED.
// It is safe for concurrent use; each Run owns its own state.
type Orchestrator struct {
	store     *EmbeddingStore
	embedder  driven.EmbeddingService
	llm       driven.LLMService
	ranker    *Ranker
	assembler *Assembler
	prompts   *PromptBuilder

	genRetry    RetryPolicy
	embedRetry  RetryPolicy
	genTimeout  time.Duration
	promptTurns int
	stream      bool

	queryCache *cache.Cache
	observer   StateObserver
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithGenerationRetry sets the retry policy for generation calls.
func WithGenerationRetry(p RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.genRetry = p
	}
}

// WithQueryEmbedRetry sets the retry policy for question embeddings.
func WithQueryEmbedRetry(p RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.embedRetry = p
	}
}

// WithGenerationTimeout bounds each generation call.
func WithGenerationTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.genTimeout = d
	}
}

// WithPromptTurns sets how many recent turns are rendered into prompts.
func WithPromptTurns(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.promptTurns = n
	}
}

// WithStreaming requests streamed generation.
func WithStreaming(stream bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.stream = stream
	}
}

// WithStateObserver registers a transition hook.
func WithStateObserver(fn StateObserver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// NewOrchestrator creates an orchestrator. llm may be nil, in which case
// every question fails in GENERATING with domain.ErrGenerationUnavailable.
func NewOrchestrator(
	store *EmbeddingStore,
	embedder driven.EmbeddingService,
	llm driven.LLMService,
	ranker *Ranker,
	assembler *Assembler,
	prompts *PromptBuilder,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		embedder:   embedder,
		llm:        llm,
		ranker:     ranker,
		assembler:  assembler,
		prompts:    prompts,
		genRetry:   RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 8 * time.Second},
		embedRetry: DefaultRetryPolicy(),
		queryCache: cache.New(queryCacheTTL, queryCacheCleanup),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the state of a single question.
type run struct {
	o     *Orchestrator
	state domain.QuestionState
}

// advance moves to the next state. A cancelled context stops the question
// at the transition.
func (r *run) advance(ctx context.Context, to domain.QuestionState) error {
	if err := ctx.Err(); err != nil {
		logger.Debug("question cancelled before %s", to)
		return err
	}
	r.set(to)
	return nil
}

func (r *run) set(to domain.QuestionState) {
	from := r.state
	r.state = to
	logger.Debug("question %s -> %s", from, to)
	if r.o.observer != nil {
		r.o.observer(from, to)
	}
}

// Run answers q within session. A completed question, successful or failed,
// is appended to the session history. A cancelled question returns the
// context error and leaves the history untouched.
func (o *Orchestrator) Run(ctx context.Context, session *Session, q Question) (*domain.Answer, error) {
	r := &run{o: o, state: domain.StateIdle}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}

	logger.Section("Question")
	logger.Debug("Question: %q", text)

	// EMBEDDING_QUERY
	if err := r.advance(ctx, domain.StateEmbeddingQuery); err != nil {
		return nil, err
	}
	vector, err := o.embedQuery(ctx, text)
	if err != nil {
		return o.fail(ctx, r, session, text, nil, err)
	}

	// RETRIEVING
	if err := r.advance(ctx, domain.StateRetrieving); err != nil {
		return nil, err
	}
	snap := o.store.Snapshot()
	results, err := o.ranker.Rank(snap, vector, q.TopK)
	if err != nil {
		return o.fail(ctx, r, session, text, nil, err)
	}
	logger.Debug("Retrieved %d results", len(results))

	// ASSEMBLING
	if err := r.advance(ctx, domain.StateAssembling); err != nil {
		return nil, err
	}
	assembled := o.assembler.Assemble(results, snap)
	logger.Debug("Context: %d citations, %d/%d %s", len(assembled.Citations), assembled.Size, assembled.Budget, assembled.Unit)

	// GENERATING
	if err := r.advance(ctx, domain.StateGenerating); err != nil {
		return nil, err
	}
	prompt, err := o.prompts.Build(text, assembled, session.Recent(o.promptTurns))
	if err != nil {
		return o.fail(ctx, r, session, text, assembled.ChunkIDs(), err)
	}

	model := q.Model
	if model == "" && o.llm != nil {
		model = o.llm.ModelName()
	}
	answerText, attempts, err := o.generate(ctx, prompt, q, model)
	if err != nil {
		return o.fail(ctx, r, session, text, assembled.ChunkIDs(), err)
	}

	// DONE
	r.set(domain.StateDone)
	session.Append(domain.ConversationTurn{
		Question:  text,
		ChunkIDs:  assembled.ChunkIDs(),
		Answer:    answerText,
		Timestamp: time.Now(),
	})

	answer := &domain.Answer{
		ConversationID: session.ID,
		Text:           answerText,
		Sources:        assembled.Citations,
		UsedContext:    assembled.HasContext(),
		Attempts:       attempts,
		Model:          model,
	}
	if answer.Sources == nil {
		answer.Sources = []domain.Citation{}
	}
	if msg, ok := o.store.Degraded(); ok {
		answer.Warnings = append(answer.Warnings, msg)
	}
	logger.Info("Answered in %d attempt(s), used_context=%t", attempts, answer.UsedContext)
	return answer, nil
}

// fail ends a question in FAILED and records the failed turn. Cancellation
// is not a failure: nothing is recorded.
func (o *Orchestrator) fail(
	ctx context.Context, r *run, session *Session, question string, chunkIDs []string, err error,
) (*domain.Answer, error) {
	if ctx.Err() != nil {
		logger.Debug("question cancelled in %s", r.state)
		return nil, ctx.Err()
	}

	failedIn := r.state
	r.set(domain.StateFailed)
	logger.Warn("question failed in %s: %v", failedIn, err)

	session.Append(domain.ConversationTurn{
		Question:  question,
		ChunkIDs:  chunkIDs,
		Answer:    "The question could not be answered: " + err.Error(),
		Failed:    true,
		Timestamp: time.Now(),
	})
	return nil, &domain.QuestionError{State: failedIn, Err: err}
}

// embedQuery embeds the question, reusing a cached vector for repeated questions.
func (o *Orchestrator) embedQuery(ctx context.Context, text string) ([]float32, error) {
	key := o.embedder.ModelName() + "\x00" + text
	if v, ok := o.queryCache.Get(key); ok {
		logger.Debug("Query embedding cache hit")
		return v.([]float32), nil
	}

	vector, _, err := retry(ctx, o.embedRetry, "embed query", func(ctx context.Context) ([]float32, error) {
		return o.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	o.queryCache.Set(key, vector, cache.DefaultExpiration)
	return vector, nil
}

// generate calls the LLM with bounded retries. Exhausting the retries on a
// transient failure yields domain.ErrGenerationUnavailable.
func (o *Orchestrator) generate(ctx context.Context, prompt string, q Question, model string) (string, int, error) {
	if o.llm == nil {
		return "", 0, fmt.Errorf("%w: no generation provider configured", domain.ErrGenerationUnavailable)
	}

	opts := driven.GenerateOptions{
		Model:  model,
		Stream: o.stream || q.OnToken != nil,
	}
	streamed := false
	if q.OnToken != nil {
		opts.OnToken = func(token string) {
			streamed = true
			q.OnToken(token)
		}
	}

	text, attempts, err := retry(ctx, o.genRetry, "generate", func(ctx context.Context) (string, error) {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.genTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, o.genTimeout)
		}
		defer cancel()

		out, err := o.llm.Generate(callCtx, prompt, opts)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) &&
			!errors.Is(err, domain.ErrGenerationTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationTimeout, err)
		}
		if err != nil && streamed {
			// The caller already holds part of this answer; another attempt
			// would stream it twice.
			return out, backoff.Permanent(err)
		}
		return out, err
	})
	if err != nil {
		if ctx.Err() == nil && domain.IsTransient(err) {
			err = fmt.Errorf("%w after %d attempts: %w", domain.ErrGenerationUnavailable, attempts, err)
		}
		return "", attempts, err
	}
	return strings.TrimSpace(text), attempts, nil
}
