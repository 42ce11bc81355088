package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestApp_EphemeralRuntime(t *testing.T) {
	a := &App{Home: t.TempDir()}
	ctx := context.Background()

	rt, err := a.Runtime(ctx, cli.Options{Ephemeral: true})
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	id, err := rt.Ingestion.AddDocument(ctx, "guide.md", "Install with go install. Configure with docqa settings.", domain.FormatText)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	stats, err := rt.Index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, "memory", stats.Backend)
	assert.Positive(t, stats.Dimensions)

	problems, err := rt.Index.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	// Nothing is written to the home directory.
	entries, err := os.ReadDir(a.Home)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApp_PersistentCorpus(t *testing.T) {
	for _, backend := range []string{"sqlite", "file"} {
		t.Run(backend, func(t *testing.T) {
			home := t.TempDir()
			ctx := context.Background()

			first := &App{Home: home}
			settings, err := first.Settings(cli.Options{})
			require.NoError(t, err)
			require.NoError(t, settings.Set("storage.backend", backend))

			rt, err := first.Runtime(ctx, cli.Options{})
			require.NoError(t, err)
			_, err = rt.Ingestion.AddDocument(ctx, "notes.txt", "The corpus survives a restart.", domain.FormatText)
			require.NoError(t, err)
			require.NoError(t, rt.Close())

			second := &App{Home: home}
			rt, err = second.Runtime(ctx, cli.Options{})
			require.NoError(t, err)
			defer func() { assert.NoError(t, rt.Close()) }()

			stats, err := rt.Index.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Documents)
			assert.Equal(t, backend, stats.Backend)
			assert.False(t, stats.Degraded)
		})
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("[embedding]\nprovider = \"openai\"\n"), 0600))

	a := &App{Home: home}
	_, err := a.Runtime(context.Background(), cli.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	// Settings still load so the configuration can be repaired.
	settings, err := a.Settings(cli.Options{})
	require.NoError(t, err)
	values, err := settings.Values()
	require.NoError(t, err)
	assert.Equal(t, "openai", values["embedding.provider"])
}

func TestApp_SettingsAreShared(t *testing.T) {
	a := &App{Home: t.TempDir()}

	s1, err := a.Settings(cli.Options{})
	require.NoError(t, err)
	s2, err := a.Settings(cli.Options{})
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}
