package mcp

import (
	"context"
	"fmt"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer *domain.Answer
	err    error
	last   driving.AskRequest
	ended  []string
}

func (m *mockQueryService) Ask(_ context.Context, req driving.AskRequest) (*domain.Answer, error) {
	m.last = req
	return m.answer, m.err
}

func (m *mockQueryService) History(_ string) []domain.ConversationTurn {
	return nil
}

func (m *mockQueryService) EndConversation(conversationID string) {
	m.ended = append(m.ended, conversationID)
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	documents []driving.DocumentSummary
	result    *domain.IngestResult
	err       error

	lastRaw   *domain.RawDocument
	lastText  string
	removed   []string
	listErr   error
	removeErr error
}

func (m *mockIngestionService) AddDocument(_ context.Context, sourceID, text string, _ domain.Format) (string, error) {
	m.lastText = text
	if m.err != nil {
		return "", m.err
	}
	id := "doc-" + sourceID
	m.documents = append(m.documents, driving.DocumentSummary{ID: id, SourceID: sourceID, ChunkCount: 1})
	return id, nil
}

func (m *mockIngestionService) AddRaw(_ context.Context, raw *domain.RawDocument) (*domain.IngestResult, error) {
	m.lastRaw = raw
	return m.result, m.err
}

func (m *mockIngestionService) IngestBatch(_ context.Context, _ []domain.RawDocument) *domain.BatchReport {
	return &domain.BatchReport{}
}

func (m *mockIngestionService) IngestPaths(_ context.Context, _ []string) (*domain.BatchReport, error) {
	return &domain.BatchReport{}, m.err
}

func (m *mockIngestionService) IngestURLs(_ context.Context, _ []string) (*domain.BatchReport, error) {
	return &domain.BatchReport{}, m.err
}

func (m *mockIngestionService) Watch(_ context.Context, _ string, _ func(driving.WatchEvent)) error {
	return m.err
}

func (m *mockIngestionService) RemoveDocument(_ context.Context, documentID string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, documentID)
	return nil
}

func (m *mockIngestionService) RemoveSource(ctx context.Context, sourceID string) error {
	return m.RemoveDocument(ctx, "doc-"+sourceID)
}

func (m *mockIngestionService) RemoveAll(_ context.Context) (int, error) {
	return len(m.documents), m.removeErr
}

func (m *mockIngestionService) List(_ context.Context) ([]driving.DocumentSummary, error) {
	return m.documents, m.listErr
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

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	stats *domain.IndexStats
	err   error
}

func (m *mockIndexService) Stats(_ context.Context) (*domain.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockIndexService) Verify(_ context.Context) ([]string, error) {
	return nil, m.err
}

func (m *mockIndexService) Rebuild(_ context.Context) error {
	return m.err
}

func newTestServer(query *mockQueryService, ingestion *mockIngestionService) *Server {
	server, err := NewServer(&Ports{Query: query, Ingestion: ingestion}, "test")
	if err != nil {
		panic(err)
	}
	return server
}
