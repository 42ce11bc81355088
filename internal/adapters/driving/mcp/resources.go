package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

const (
	uriScheme = "docqa://"
	mimeJSON  = "application/json"

	documentsURI = uriScheme + "documents"
	statsURI     = uriScheme + "index/stats"
)

// documentInfo is the JSON form of a document summary.
type documentInfo struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	Format     string    `json:"format"`
	Version    string    `json:"version"`
	Characters int       `json:"characters"`
	Chunks     int       `json:"chunks"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toDocumentInfo(d *driving.DocumentSummary) documentInfo {
	return documentInfo{
		ID:         d.ID,
		SourceID:   d.SourceID,
		Format:     string(d.Format),
		Version:    d.Version,
		Characters: d.Characters,
		Chunks:     d.ChunkCount,
		UpdatedAt:  d.UpdatedAt,
	}
}

// registerResources exposes the corpus listing, per-document summaries and,
// when an index port is wired, corpus statistics.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Description: "List of all documents in the corpus",
		MIMEType:    mimeJSON,
	}, s.readDocuments)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentsURI + "/{documentId}",
		Name:        "document",
		Description: "Summary of one document",
		MIMEType:    mimeJSON,
	}, s.readDocument)

	if s.ports.Index != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         statsURI,
			Name:        "index-stats",
			Description: "Corpus size, embedding model and dimensions",
			MIMEType:    mimeJSON,
		}, s.readStats)
	}
}

func (s *Server) readDocuments(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Ingestion.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]documentInfo, len(docs))
	for i := range docs {
		infos[i] = toDocumentInfo(&docs[i])
	}
	return jsonResult(req.Params.URI, infos)
}

func (s *Server) readDocument(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Ingestion.Get(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return jsonResult(req.Params.URI, toDocumentInfo(doc))
}

func (s *Server) readStats(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}

	return jsonResult(req.Params.URI, struct {
		Documents  int    `json:"documents"`
		Chunks     int    `json:"chunks"`
		Dimensions int    `json:"dimensions"`
		Model      string `json:"model"`
		Backend    string `json:"backend"`
		Degraded   bool   `json:"degraded"`
	}{stats.Documents, stats.Chunks, stats.Dimensions, stats.Model, stats.Backend, stats.Degraded})
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: mimeJSON,
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID returns the id in docqa://documents/{id}, or "".
func extractDocumentID(uri string) string {
	id, _ := strings.CutPrefix(uri, documentsURI+"/")
	if id == uri {
		return ""
	}
	return id
}
