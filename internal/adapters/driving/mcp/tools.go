package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question       string `json:"question" jsonschema:"the question to answer from the documentation"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"conversation to continue; omit to start a new one"`
	TopK           int    `json:"top_k,omitempty" jsonschema:"number of passages to retrieve (default from settings)"`
	Model          string `json:"model,omitempty" jsonschema:"generation model override for this question"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer         string         `json:"answer"`
	ConversationID string         `json:"conversation_id"`
	UsedContext    bool           `json:"used_context"`
	Sources        []SourceOutput `json:"sources"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// SourceOutput is one passage cited by an answer.
type SourceOutput struct {
	Index      int     `json:"index"`
	SourceID   string  `json:"source_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Truncated  bool    `json:"truncated,omitempty"`
}

// AddDocumentInput is the input schema for the add_document tool.
type AddDocumentInput struct {
	SourceID string `json:"source_id" jsonschema:"stable identifier for the document, such as a path or URL"`
	Text     string `json:"text" jsonschema:"the document text"`
	Format   string `json:"format,omitempty" jsonschema:"text, markdown or html (default markdown)"`
}

// AddDocumentOutput is the output schema for the add_document tool.
type AddDocumentOutput struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
}

// RemoveDocumentInput is the input schema for the remove_document tool.
type RemoveDocumentInput struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"id of the document to remove"`
	SourceID   string `json:"source_id,omitempty" jsonschema:"source the document was added from"`
}

// RemoveDocumentOutput is the output schema for the remove_document tool.
type RemoveDocumentOutput struct {
	Removed bool `json:"removed"`
}

// EndConversationInput is the input schema for the end_conversation tool.
type EndConversationInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"conversation to discard"`
}

// EndConversationOutput is the output schema for the end_conversation tool.
type EndConversationOutput struct {
	Ended bool `json:"ended"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed documentation, citing sources",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_document",
		Description: "Add or replace a document in the corpus",
	}, s.handleAddDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remove_document",
		Description: "Remove a document from the corpus",
	}, s.handleRemoveDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "end_conversation",
		Description: "Discard a conversation's history",
	}, s.handleEndConversation)
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, fmt.Errorf("question: %w", domain.ErrInvalidInput)
	}

	answer, err := s.ports.Query.Ask(ctx, driving.AskRequest{
		Question:       input.Question,
		ConversationID: input.ConversationID,
		TopK:           input.TopK,
		Model:          input.Model,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:         answer.Text,
		ConversationID: answer.ConversationID,
		UsedContext:    answer.UsedContext,
		Sources:        make([]SourceOutput, len(answer.Sources)),
		Warnings:       answer.Warnings,
	}
	for i, c := range answer.Sources {
		output.Sources[i] = SourceOutput{
			Index:      c.Index,
			SourceID:   c.SourceID,
			DocumentID: c.DocumentID,
			Score:      c.Score,
			Truncated:  c.Truncated,
		}
	}

	return nil, output, nil
}

// handleAddDocument handles the add_document tool invocation.
func (s *Server) handleAddDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AddDocumentInput,
) (*mcp.CallToolResult, AddDocumentOutput, error) {
	format := domain.FormatMarkdown
	if input.Format != "" {
		format = domain.Format(input.Format)
	}
	// Binary formats cannot travel as tool text.
	if format == domain.FormatPDF || format == domain.FormatDOCX || !format.IsValid() {
		return nil, AddDocumentOutput{}, fmt.Errorf("format %q: %w", input.Format, domain.ErrUnsupportedFormat)
	}

	// Plain text from an agent needs no normalising.
	if format == domain.FormatText {
		id, err := s.ports.Ingestion.AddDocument(ctx, input.SourceID, input.Text, format)
		if err != nil {
			return nil, AddDocumentOutput{}, err
		}
		output := AddDocumentOutput{DocumentID: id, Status: "stored"}
		if doc, err := s.ports.Ingestion.Get(ctx, id); err == nil {
			output.Chunks = doc.ChunkCount
		}
		return nil, output, nil
	}

	res, err := s.ports.Ingestion.AddRaw(ctx, &domain.RawDocument{
		SourceID: input.SourceID,
		Format:   format,
		Content:  []byte(input.Text),
	})
	if err != nil {
		return nil, AddDocumentOutput{}, err
	}

	return nil, AddDocumentOutput{
		DocumentID: res.DocumentID,
		Status:     string(res.Status),
		Chunks:     res.ChunkCount,
	}, nil
}

// handleRemoveDocument handles the remove_document tool invocation.
func (s *Server) handleRemoveDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RemoveDocumentInput,
) (*mcp.CallToolResult, RemoveDocumentOutput, error) {
	ref := input.DocumentID
	if ref == "" {
		ref = input.SourceID
	}
	if ref == "" {
		return nil, RemoveDocumentOutput{}, errMissingDocumentRef
	}

	doc, err := s.ports.Ingestion.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, RemoveDocumentOutput{Removed: false}, nil
		}
		return nil, RemoveDocumentOutput{}, err
	}

	if err := s.ports.Ingestion.RemoveDocument(ctx, doc.ID); err != nil {
		return nil, RemoveDocumentOutput{}, err
	}
	return nil, RemoveDocumentOutput{Removed: true}, nil
}

// handleEndConversation handles the end_conversation tool invocation.
func (s *Server) handleEndConversation(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input EndConversationInput,
) (*mcp.CallToolResult, EndConversationOutput, error) {
	if input.ConversationID == "" {
		return nil, EndConversationOutput{}, fmt.Errorf("conversation_id: %w", domain.ErrInvalidInput)
	}
	s.ports.Query.EndConversation(input.ConversationID)
	return nil, EndConversationOutput{Ended: true}, nil
}
