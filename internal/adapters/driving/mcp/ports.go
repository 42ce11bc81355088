package mcp

import (
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// Ports are the driving ports behind the MCP tools and resources.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Ingestion adds and removes documents.
	Ingestion driving.IngestionService

	// Index reports corpus statistics. Optional.
	Index driving.IndexService
}

// Validate reports the first missing required port.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if p.Ingestion == nil {
		return ErrMissingIngestionService
	}
	return nil
}
