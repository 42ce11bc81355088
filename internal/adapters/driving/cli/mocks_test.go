package cli

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	documents []driving.DocumentSummary
	report    *domain.BatchReport
	result    *domain.IngestResult
	events    []driving.WatchEvent
	err       error

	paths   []string
	urls    []string
	lastRaw *domain.RawDocument
	removed []string
	cleared bool
}

func (m *mockIngestionService) AddDocument(_ context.Context, sourceID, _ string, _ domain.Format) (string, error) {
	return "doc-" + sourceID, m.err
}

func (m *mockIngestionService) AddRaw(_ context.Context, raw *domain.RawDocument) (*domain.IngestResult, error) {
	m.lastRaw = raw
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.IngestResult{DocumentID: "doc-" + raw.SourceID, SourceID: raw.SourceID, Status: domain.IngestAdded, ChunkCount: 1}, nil
}

func (m *mockIngestionService) IngestBatch(_ context.Context, _ []domain.RawDocument) *domain.BatchReport {
	return m.report
}

func (m *mockIngestionService) IngestPaths(_ context.Context, paths []string) (*domain.BatchReport, error) {
	m.paths = paths
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockIngestionService) IngestURLs(_ context.Context, urls []string) (*domain.BatchReport, error) {
	m.urls = urls
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockIngestionService) Watch(_ context.Context, _ string, onChange func(driving.WatchEvent)) error {
	for _, ev := range m.events {
		onChange(ev)
	}
	return m.err
}

func (m *mockIngestionService) RemoveDocument(_ context.Context, documentID string) error {
	m.removed = append(m.removed, documentID)
	return nil
}

func (m *mockIngestionService) RemoveSource(ctx context.Context, sourceID string) error {
	return m.RemoveDocument(ctx, "doc-"+sourceID)
}

func (m *mockIngestionService) RemoveAll(_ context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.cleared = true
	return len(m.documents), nil
}

func (m *mockIngestionService) List(_ context.Context) ([]driving.DocumentSummary, error) {
	return m.documents, m.err
}

func (m *mockIngestionService) Get(_ context.Context, ref string) (*driving.DocumentSummary, error) {
	for i := range m.documents {
		if m.documents[i].ID == ref || m.documents[i].SourceID == ref {
			d := m.documents[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", ref, domain.ErrNotFound)
}

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answers []*domain.Answer
	tokens  []string
	err     error

	requests []driving.AskRequest
	ended    []string
}

func (m *mockQueryService) Ask(_ context.Context, req driving.AskRequest) (*domain.Answer, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if req.OnToken != nil {
		for _, tok := range m.tokens {
			req.OnToken(tok)
		}
	}
	answer := m.answers[0]
	if len(m.answers) > 1 {
		m.answers = m.answers[1:]
	}
	return answer, nil
}

func (m *mockQueryService) History(_ string) []domain.ConversationTurn {
	return nil
}

func (m *mockQueryService) EndConversation(conversationID string) {
	m.ended = append(m.ended, conversationID)
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	stats    *domain.IndexStats
	problems []string
	err      error
	rebuilt  bool
}

func (m *mockIndexService) Stats(_ context.Context) (*domain.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockIndexService) Verify(_ context.Context) ([]string, error) {
	return m.problems, m.err
}

func (m *mockIndexService) Rebuild(_ context.Context) error {
	m.rebuilt = true
	return m.err
}

// mockSettingsService is a mock implementation of driving.SettingsService.
// Values are stored as display strings; getErr simulates invalid settings.
type mockSettingsService struct {
	values    map[string]string
	getErr    error
	setErr    error
	pingErr   error
	sets      [][2]string
	unsets    []string
	embedPing int
	llmPing   int
	models    []string
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{values: map[string]string{
		"embedding.api_key":  "",
		"embedding.model":    "hashing-v1",
		"embedding.provider": "local",
		"llm.api_key":        "sk-1234567890abcdef",
		"llm.model":          "llama3.2",
		"llm.provider":       "ollama",
		"retrieval.top_k":    "3",
	}}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s := domain.DefaultSettings()
	s.Embedding.Provider = domain.AIProvider(m.values["embedding.provider"])
	s.Embedding.Model = m.values["embedding.model"]
	s.LLM.Provider = domain.AIProvider(m.values["llm.provider"])
	s.LLM.Model = m.values["llm.model"]
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if _, ok := m.values[key]; !ok && !strings.HasSuffix(key, "base_url") {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidConfig, key)
	}
	m.sets = append(m.sets, [2]string{key, value})
	m.values[key] = value
	return nil
}

func (m *mockSettingsService) Unset(key string) error {
	m.unsets = append(m.unsets, key)
	return m.setErr
}

func (m *mockSettingsService) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *mockSettingsService) Values() (map[string]string, error) {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *mockSettingsService) Validate(_ *domain.Settings) error {
	return m.getErr
}

func (m *mockSettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func (m *mockSettingsService) ValidateEmbeddingConfig(_ context.Context) error {
	m.embedPing++
	return m.pingErr
}

func (m *mockSettingsService) ValidateLLMConfig(_ context.Context) error {
	m.llmPing++
	return m.pingErr
}

func (m *mockSettingsService) ListLLMModels(_ context.Context) ([]string, error) {
	return m.models, m.pingErr
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	ingestion *mockIngestionService
	query     *mockQueryService
	index     *mockIndexService
	settings  *mockSettingsService
}

// setupTestServices installs mock services and resets command flags.
// The returned function restores the previous state.
func setupTestServices() (*testServices, func()) {
	svcs := &testServices{
		ingestion: &mockIngestionService{report: &domain.BatchReport{}},
		query:     &mockQueryService{answers: []*domain.Answer{{ConversationID: "conv-1", Text: "answer"}}},
		index:     &mockIndexService{stats: &domain.IndexStats{}},
		settings:  newMockSettingsService(),
	}

	prevIngestion, prevQuery, prevIndex, prevSettings := ingestionService, queryService, indexService, settingsService
	ingestionService = svcs.ingestion
	queryService = svcs.query
	indexService = svcs.index
	settingsService = svcs.settings
	resetFlags()

	return svcs, func() {
		ingestionService, queryService, indexService, settingsService = prevIngestion, prevQuery, prevIndex, prevSettings
		resetFlags()
	}
}

func resetFlags() {
	askConversation, askModel, askTopK, askJSON, askInteractive = "", "", 0, false, false
	addSource, addFormat, addURLs = "", string(domain.FormatText), nil
	mcpPort = 0
	removeAll = false
}

// execute runs the root command with args and stdin, returning combined output.
func execute(stdin string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
