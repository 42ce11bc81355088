package services

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers questions within conversations.
type QueryService struct {
	orchestrator *Orchestrator
	sessions     *SessionRegistry
}

// NewQueryService creates a query service.
func NewQueryService(orchestrator *Orchestrator, sessions *SessionRegistry) *QueryService {
	return &QueryService{
		orchestrator: orchestrator,
		sessions:     sessions,
	}
}

// Ask runs one question in the requested conversation.
func (s *QueryService) Ask(ctx context.Context, req driving.AskRequest) (*domain.Answer, error) {
	session := s.sessions.Get(req.ConversationID)
	return s.orchestrator.Run(ctx, session, Question{
		Text:    req.Question,
		TopK:    req.TopK,
		Model:   req.Model,
		OnToken: req.OnToken,
	})
}

// History returns a conversation's retained turns, oldest first.
func (s *QueryService) History(conversationID string) []domain.ConversationTurn {
	session, ok := s.sessions.Lookup(conversationID)
	if !ok {
		return nil
	}
	return session.Turns()
}

// EndConversation discards a conversation.
func (s *QueryService) EndConversation(conversationID string) {
	s.sessions.Delete(conversationID)
}
