package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// QueryService answers questions against the corpus.
type QueryService interface {
	// Ask runs one question through the retrieval-augmented pipeline.
	// Failures are returned as *domain.QuestionError.
	Ask(ctx context.Context, req AskRequest) (*domain.Answer, error)

	// History returns the retained turns of a conversation, oldest first.
	History(conversationID string) []domain.ConversationTurn

	// EndConversation discards a conversation's history.
	EndConversation(conversationID string)
}

// AskRequest is a single question.
type AskRequest struct {
	// Question is the natural-language question.
	Question string

	// ConversationID selects the session. Empty starts a new one.
	ConversationID string

	// TopK overrides the configured result count when positive.
	TopK int

	// Model overrides the configured generation model when non-empty.
	Model string

	// OnToken receives streamed answer text when the provider streams.
	OnToken func(token string)
}
