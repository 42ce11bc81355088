// Package file provides a corpus store kept in plain JSON table files.
//
// The corpus directory holds three files: documents.json, chunks.json and
// meta.json. Every write goes to a temporary file in the same directory and
// is renamed over the old one, so a crash leaves either the old or the new
// table, never a torn one. Each table carries a SHA-256 checksum of its
// payload; a table that fails the check is reported as domain.ErrIndexCorrupt.
//
// Documents are written before chunks. A crash between the two leaves chunks
// of a stale version behind, which the embedding store detects and rebuilds.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure CorpusStore implements the interface.
var _ driven.CorpusStore = (*CorpusStore)(nil)

// Table file names.
const (
	DocumentsFile = "documents.json"
	ChunksFile    = "chunks.json"
	MetaFile      = "meta.json"
)

// envelope wraps a table payload with its checksum.
type envelope struct {
	Checksum string          `json:"checksum"`
	Data     json.RawMessage `json:"data"`
}

// CorpusStore keeps the corpus tables in memory and writes them through to disk.
type CorpusStore struct {
	dir string

	mu        sync.RWMutex
	meta      driven.CorpusMeta
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk

	// chunkErr is set when chunks.json failed its integrity check at open.
	chunkErr error
}

// NewCorpusStore opens (or creates) a corpus in dir. A damaged documents
// table is an error: it is the source every rebuild starts from.
func NewCorpusStore(dir string) (*CorpusStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating corpus directory: %w", err)
	}

	s := &CorpusStore{
		dir:       dir,
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}

	var docs []domain.Document
	if err := s.read(DocumentsFile, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		s.documents[d.ID] = d
	}

	if err := s.read(MetaFile, &s.meta); err != nil && !errors.Is(err, domain.ErrIndexCorrupt) {
		return nil, err
	}

	var chunks []domain.Chunk
	switch err := s.read(ChunksFile, &chunks); {
	case errors.Is(err, domain.ErrIndexCorrupt):
		s.chunkErr = err
	case err != nil:
		return nil, err
	}
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return s, nil
}

// Dir returns the corpus directory.
func (s *CorpusStore) Dir() string {
	return s.dir
}

// Name identifies the backend.
func (s *CorpusStore) Name() string {
	return "file"
}

// Close is a no-op; every write is already on disk.
func (s *CorpusStore) Close() error {
	return nil
}

// Meta returns the corpus metadata.
func (s *CorpusStore) Meta(_ context.Context) (driven.CorpusMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, nil
}

// SetMeta records the corpus metadata.
func (s *CorpusStore) SetMeta(_ context.Context, meta driven.CorpusMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(MetaFile, meta); err != nil {
		return err
	}
	s.meta = meta
	return nil
}

// ReplaceDocument stores doc and swaps its chunk set.
func (s *CorpusStore) ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocumentID, doc.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := cloneDocuments(s.documents)
	docs[doc.ID] = *doc
	byDoc := cloneChunks(s.chunks)
	byDoc[doc.ID] = append([]domain.Chunk(nil), chunks...)

	return s.commit(docs, byDoc)
}

// DeleteDocument removes a document and any chunks filed under its ID.
func (s *CorpusStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.documents[id]
	if _, hasChunks := s.chunks[id]; !existed && !hasChunks {
		return false, nil
	}

	docs := cloneDocuments(s.documents)
	delete(docs, id)
	byDoc := cloneChunks(s.chunks)
	delete(byDoc, id)

	if err := s.commit(docs, byDoc); err != nil {
		return false, err
	}
	return existed, nil
}

// Clear empties both tables and the metadata.
func (s *CorpusStore) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.documents)
	if err := s.commit(map[string]domain.Document{}, map[string][]domain.Chunk{}); err != nil {
		return 0, err
	}
	if err := s.write(MetaFile, driven.CorpusMeta{}); err != nil {
		return 0, err
	}
	s.meta = driven.CorpusMeta{}
	return n, nil
}

// commit writes both tables, then installs them in memory. Caller holds s.mu.
func (s *CorpusStore) commit(docs map[string]domain.Document, byDoc map[string][]domain.Chunk) error {
	if err := s.write(DocumentsFile, sortedDocuments(docs)); err != nil {
		return err
	}
	if err := s.write(ChunksFile, sortedChunks(byDoc)); err != nil {
		return err
	}
	s.documents = docs
	s.chunks = byDoc
	s.chunkErr = nil
	return nil
}

// GetDocument retrieves a document by ID.
func (s *CorpusStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns every document ordered by source.
func (s *CorpusStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedDocuments(s.documents), nil
}

// LoadChunks returns every chunk ordered by ID, or domain.ErrIndexCorrupt
// when the chunk table failed its integrity check.
func (s *CorpusStore) LoadChunks(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chunkErr != nil {
		return nil, s.chunkErr
	}
	return sortedChunks(s.chunks), nil
}

// read loads a table. A missing file is an empty table.
func (s *CorpusStore) read(name string, v any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", domain.ErrIOFailure, name, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s is not valid JSON: %w", domain.ErrIndexCorrupt, name, err)
	}
	if checksum(env.Data) != env.Checksum {
		return fmt.Errorf("%w: %s checksum mismatch", domain.ErrIndexCorrupt, name)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", domain.ErrIndexCorrupt, name, err)
	}
	return nil
}

// write replaces a table atomically: temp file, fsync, rename.
func (s *CorpusStore) write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	raw, err := json.Marshal(envelope{Checksum: checksum(data), Data: data})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %w", domain.ErrIOFailure, name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", domain.ErrIOFailure, name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing %s: %w", domain.ErrIOFailure, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", domain.ErrIOFailure, name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", domain.ErrIOFailure, name, err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cloneDocuments(m map[string]domain.Document) map[string]domain.Document {
	out := make(map[string]domain.Document, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneChunks(m map[string][]domain.Chunk) map[string][]domain.Chunk {
	out := make(map[string][]domain.Chunk, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedDocuments(m map[string]domain.Document) []domain.Document {
	docs := make([]domain.Document, 0, len(m))
	for _, d := range m {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceID < docs[j].SourceID })
	return docs
}

func sortedChunks(m map[string][]domain.Chunk) []domain.Chunk {
	var all []domain.Chunk
	for _, chunks := range m {
		all = append(all, chunks...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
