package cli

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

func sampleDocuments() []driving.DocumentSummary {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []driving.DocumentSummary{
		{
			ID: "doc-a", SourceID: "/docs/a.md", Format: domain.FormatMarkdown,
			Version: "abc123", Characters: 1200, ChunkCount: 2, CreatedAt: ts, UpdatedAt: ts,
		},
		{ID: "doc-b", SourceID: "/docs/b.pdf", Format: domain.FormatPDF, ChunkCount: 9},
	}
}

func TestDocumentsCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range documentsCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Contains(t, names, "list")
	assert.Contains(t, names, "show")
}

func TestDocumentsListCmd_Empty(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("", "documents", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No documents in the corpus.")
}

func TestDocumentsListCmd_ListsDocuments(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.documents = sampleDocuments()

	out, err := execute("", "docs", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "doc-a")
	assert.Contains(t, out, "Source: /docs/b.pdf")
	assert.Contains(t, out, "Format: pdf, 9 chunks")
	assert.Contains(t, out, "Total: 2 documents")
}

func TestDocumentsShowCmd(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.documents = sampleDocuments()

	out, err := execute("", "documents", "show", "/docs/a.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Document: doc-a")
	assert.Contains(t, out, "Version:    abc123")
	assert.Contains(t, out, "Characters: 1200")
	assert.Contains(t, out, "Updated:    2025-01-02 03:04:05")
}

func TestDocumentsShowCmd_NotFound(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("", "documents", "show", "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveCmd(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.documents = sampleDocuments()

	out, err := execute("", "remove", "doc-b", "/docs/a.md", "nothing-here")

	require.NoError(t, err)
	assert.Equal(t, []string{"doc-b", "doc-a"}, svcs.ingestion.removed)
	assert.Contains(t, out, "Removed /docs/b.pdf (doc-b)")
	assert.Contains(t, out, "nothing-here: not in corpus")
}

func TestRemoveCmd_All(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.documents = sampleDocuments()

	out, err := execute("", "remove", "--all")

	require.NoError(t, err)
	assert.True(t, svcs.ingestion.cleared)
	assert.Empty(t, svcs.ingestion.removed)
	assert.Contains(t, out, fmt.Sprintf("Removed %d documents", len(sampleDocuments())))
}

func TestRemoveCmd_AllRejectsArgs(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("", "remove", "--all", "doc-a")

	assert.Error(t, err)
	assert.False(t, svcs.ingestion.cleared)
}

func TestRemoveCmd_RelativePath(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()

	abs, err := filepath.Abs("guide.md")
	require.NoError(t, err)
	svcs.ingestion.documents = []driving.DocumentSummary{{ID: "doc-g", SourceID: abs}}

	_, err = execute("", "remove", "guide.md")

	require.NoError(t, err)
	assert.Equal(t, []string{"doc-g"}, svcs.ingestion.removed)
}
