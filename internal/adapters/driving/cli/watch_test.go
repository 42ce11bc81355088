package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

func TestWatchCmd_PrintsEvents(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.events = []driving.WatchEvent{
		{
			Change:   domain.ChangeCreated,
			SourceID: "/docs/new.md",
			Result:   &domain.IngestResult{Status: domain.IngestAdded, ChunkCount: 2},
		},
		{
			Change:   domain.ChangeUpdated,
			SourceID: "/docs/same.md",
			Result:   &domain.IngestResult{Status: domain.IngestUnchanged},
		},
		{Change: domain.ChangeDeleted, SourceID: "/docs/old.md"},
		{Change: domain.ChangeUpdated, SourceID: "/docs/bad.pdf", Err: domain.ErrParseFailure},
	}

	out, err := execute("", "watch", "/docs")

	require.NoError(t, err)
	assert.Contains(t, out, "Watching /docs")
	assert.Contains(t, out, "created /docs/new.md (2 chunks)")
	assert.Contains(t, out, "updated /docs/same.md (unchanged)")
	assert.Contains(t, out, "removed /docs/old.md")
	assert.Contains(t, out, "failed /docs/bad.pdf: parse failure")
}

func TestWatchCmd_Cancelled(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.err = context.Canceled

	_, err := execute("", "watch", "/docs")

	assert.NoError(t, err)
}

func TestWatchCmd_Error(t *testing.T) {
	svcs, cleanup := setupTestServices()
	defer cleanup()
	svcs.ingestion.err = errors.New("root path error: not a directory")

	_, err := execute("", "watch", "/docs/file.md")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch failed")
}
