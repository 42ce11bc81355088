package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func sourceIDs(docs []domain.RawDocument) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.SourceID
	}
	return ids
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.DocumentSource = (*Source)(nil)
}

func TestNew_Options(t *testing.T) {
	s := New(WithMaxFileSize(10), WithDebounce(time.Second))
	assert.Equal(t, int64(10), s.maxFileSize)
	assert.Equal(t, time.Second, s.debounce)

	s = New(WithMaxFileSize(0), WithDebounce(0))
	assert.Equal(t, DefaultMaxFileSize, s.maxFileSize)
	assert.Equal(t, DefaultDebounce, s.debounce)
}

func TestLoad_WalksDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.md"), "# Readme")
	writeFile(t, filepath.Join(dir, "guide", "install.txt"), "install")
	writeFile(t, filepath.Join(dir, "guide", "page.html"), "<p>page</p>")
	writeFile(t, filepath.Join(dir, "image.png"), "binary")
	writeFile(t, filepath.Join(dir, ".git", "notes.md"), "hidden dir")
	writeFile(t, filepath.Join(dir, ".draft.md"), "hidden file")

	docs, failures := New().Load(context.Background(), []string{dir})

	assert.Empty(t, failures)
	assert.Equal(t, []string{
		filepath.Join(dir, "guide", "install.txt"),
		filepath.Join(dir, "guide", "page.html"),
		filepath.Join(dir, "readme.md"),
	}, sourceIDs(docs))

	byID := make(map[string]domain.RawDocument)
	for _, d := range docs {
		byID[filepath.Base(d.SourceID)] = d
	}
	assert.Equal(t, domain.FormatMarkdown, byID["readme.md"].Format)
	assert.Equal(t, domain.FormatText, byID["install.txt"].Format)
	assert.Equal(t, domain.FormatHTML, byID["page.html"].Format)
	assert.Equal(t, "# Readme", string(byID["readme.md"].Content))
}

func TestLoad_ExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "a.md")
	png := filepath.Join(dir, "b.png")
	writeFile(t, md, "a")
	writeFile(t, png, "b")

	docs, failures := New().Load(context.Background(), []string{md, md, png, filepath.Join(dir, "missing.md")})

	require.Len(t, docs, 1)
	assert.Equal(t, md, docs[0].SourceID)
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0].Err, domain.ErrUnsupportedFormat)
	assert.ErrorIs(t, failures[1].Err, domain.ErrIOFailure)
}

func TestLoad_RelativePathsBecomeAbsolute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "doc.txt"), "x")
	t.Chdir(dir)

	docs, failures := New().Load(context.Background(), []string{"doc.txt"})

	require.Empty(t, failures)
	require.Len(t, docs, 1)
	assert.True(t, filepath.IsAbs(docs[0].SourceID))
	assert.Equal(t, "doc.txt", filepath.Base(docs[0].SourceID))
}

func TestLoad_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.txt"), "0123456789")
	writeFile(t, filepath.Join(dir, "small.txt"), "01")

	docs, failures := New(WithMaxFileSize(5)).Load(context.Background(), []string{dir})

	require.Len(t, docs, 1)
	assert.Equal(t, "small.txt", filepath.Base(docs[0].SourceID))
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, domain.ErrIOFailure)
	assert.Contains(t, failures[0].Err.Error(), "limit 5")
}

func TestLoad_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs, failures := New().Load(ctx, []string{dir})

	assert.Empty(t, docs)
	assert.Empty(t, failures)
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{".hidden", true},
		{".git", true},
		{"file.txt", false},
		{"file.hidden", false},
		{".", false},
		{"..", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.name))
		})
	}
}

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name         string
		file         string
		create       bool
		op           fsnotify.Op
		expectChange bool
		expectedType domain.ChangeType
	}{
		{name: "create", file: "a.md", create: true, op: fsnotify.Create, expectChange: true, expectedType: domain.ChangeCreated},
		{name: "write", file: "a.md", create: true, op: fsnotify.Write, expectChange: true, expectedType: domain.ChangeUpdated},
		{name: "create then write", file: "a.md", create: true, op: fsnotify.Create | fsnotify.Write, expectChange: true, expectedType: domain.ChangeCreated},
		{name: "remove", file: "gone.md", op: fsnotify.Remove, expectChange: true, expectedType: domain.ChangeDeleted},
		{name: "rename away", file: "old.md", op: fsnotify.Rename, expectChange: true, expectedType: domain.ChangeDeleted},
		{name: "created then removed", file: "tmp.md", op: fsnotify.Create | fsnotify.Remove, expectChange: true, expectedType: domain.ChangeDeleted},
		{name: "chmod only", file: "a.md", create: true, op: fsnotify.Chmod},
		{name: "unsupported", file: "a.png", create: true, op: fsnotify.Create},
		{name: "hidden", file: ".a.md", create: true, op: fsnotify.Create},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			if tt.create {
				writeFile(t, path, "content")
			}

			change := New().handleFsEvent(fsnotify.Event{Name: path, Op: tt.op})

			if !tt.expectChange {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.expectedType, change.Type)
			assert.Equal(t, path, change.Document.SourceID)
			if tt.expectedType == domain.ChangeDeleted {
				assert.Empty(t, change.Document.Content)
			} else {
				assert.Equal(t, "content", string(change.Document.Content))
			}
		})
	}

	t.Run("directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "sub.md")
		require.NoError(t, os.Mkdir(dir, 0755))
		assert.Nil(t, New().handleFsEvent(fsnotify.Event{Name: dir, Op: fsnotify.Create}))
	})
}

func nextChange(t *testing.T, ch <-chan domain.RawDocumentChange) domain.RawDocumentChange {
	t.Helper()
	select {
	case change, ok := <-ch:
		require.True(t, ok, "channel closed")
		return change
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for change")
		return domain.RawDocumentChange{}
	}
}

func TestWatch_CreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	src := New(WithDebounce(20 * time.Millisecond))
	defer src.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := src.Watch(ctx, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "new.md")
	writeFile(t, path, "v1")
	change := nextChange(t, changes)
	assert.Equal(t, domain.ChangeCreated, change.Type)
	assert.Equal(t, path, change.Document.SourceID)
	assert.Equal(t, "v1", string(change.Document.Content))

	writeFile(t, path, "v2")
	change = nextChange(t, changes)
	assert.Equal(t, domain.ChangeUpdated, change.Type)
	assert.Equal(t, "v2", string(change.Document.Content))

	require.NoError(t, os.Remove(path))
	change = nextChange(t, changes)
	assert.Equal(t, domain.ChangeDeleted, change.Type)
	assert.Equal(t, path, change.Document.SourceID)
}

func TestWatch_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	src := New(WithDebounce(50 * time.Millisecond))
	defer src.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := src.Watch(ctx, dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give the watcher time to pick up the new directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "inner.txt"), "inner")

	change := nextChange(t, changes)
	assert.Equal(t, domain.ChangeCreated, change.Type)
	assert.Equal(t, filepath.Join(sub, "inner.txt"), change.Document.SourceID)
}

func TestWatch_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	src := New(WithDebounce(20 * time.Millisecond))
	defer src.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := src.Watch(ctx, dir)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "image.png"), "x")
	writeFile(t, filepath.Join(dir, "doc.txt"), "y")

	change := nextChange(t, changes)
	assert.Equal(t, "doc.txt", filepath.Base(change.Document.SourceID))
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	src := New()
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := src.Watch(ctx, t.TempDir())
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancellation")
	}
}

func TestWatch_Errors(t *testing.T) {
	src := New()

	_, err := src.Watch(context.Background(), "/non/existent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root path error")

	file := filepath.Join(t.TempDir(), "f.txt")
	writeFile(t, file, "x")
	_, err = src.Watch(context.Background(), file)
	assert.ErrorContains(t, err, "not a directory")

	require.NoError(t, src.Close())
	_, err = src.Watch(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_StopsWatches(t *testing.T) {
	src := New()

	changes, err := src.Watch(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, src.Close())

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel did not close after Close")
	}
}
