package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.CorpusStore = (*Store)(nil)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "corpus.db"

const (
	metaDimensions = "dimensions"
	metaModel      = "model"
	metaChunking   = "chunking"
)

const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

const documentColumns = "id, source_id, format, content, version, created_at, updated_at"

// Store keeps the corpus in a single SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) dataDir/corpus.db and migrates it.
// An empty dataDir means ~/.docqa/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docqa", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(context.Background(), migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Name identifies the backend in index stats.
func (s *Store) Name() string { return "sqlite" }

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Meta returns the recorded corpus metadata; a fresh corpus has the zero value.
func (s *Store) Meta(ctx context.Context) (driven.CorpusMeta, error) {
	var meta driven.CorpusMeta

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM corpus_meta")
	if err != nil {
		return meta, fmt.Errorf("querying corpus meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, fmt.Errorf("scanning corpus meta: %w", err)
		}
		switch key {
		case metaModel:
			meta.Model = value
		case metaChunking:
			meta.Chunking = value
		case metaDimensions:
			if meta.Dimensions, err = strconv.Atoi(value); err != nil {
				return meta, fmt.Errorf("%w: corpus dimensions %q", domain.ErrIndexCorrupt, value)
			}
		}
	}
	return meta, rows.Err()
}

func (s *Store) SetMeta(ctx context.Context, meta driven.CorpusMeta) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for key, value := range map[string]string{
			metaDimensions: strconv.Itoa(meta.Dimensions),
			metaModel:      meta.Model,
			metaChunking:   meta.Chunking,
		} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO corpus_meta (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
				return fmt.Errorf("saving corpus %s: %w", key, err)
			}
		}
		return nil
	})
}

// ReplaceDocument upserts doc and swaps its whole chunk set atomically.
func (s *Store) ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocumentID, doc.ID)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_id  = excluded.source_id,
				format     = excluded.format,
				content    = excluded.content,
				version    = excluded.version,
				updated_at = excluded.updated_at`,
			doc.ID, doc.SourceID, string(doc.Format), doc.Content, doc.Version, doc.CreatedAt, doc.UpdatedAt,
		); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
			return fmt.Errorf("clearing chunks: %w", err)
		}

		insert, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, content, start_offset, end_offset, position, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insert.Close()

		for _, c := range chunks {
			if _, err := insert.ExecContext(ctx, c.ID, c.DocumentID, c.Content,
				c.Start, c.End, c.Position, encodeVector(c.Embedding)); err != nil {
				return fmt.Errorf("saving chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// DeleteDocument removes a document and its chunks. Chunks go by document
// ID even when the document row is already gone, which purges orphans.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		n, err := res.RowsAffected()
		removed = n > 0
		return err
	})
	return removed, err
}

// Clear empties all three tables in one transaction.
func (s *Store) Clear(ctx context.Context) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
			return fmt.Errorf("counting documents: %w", err)
		}
		for _, table := range []string{"chunks", "documents", "corpus_meta"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// ListDocuments returns every document ordered by source identifier.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY source_id")
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// LoadChunks returns every chunk with its embedding, ordered by chunk ID.
// A blob that is not a whole number of float32s is domain.ErrIndexCorrupt.
func (s *Store) LoadChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, start_offset, end_offset, position, embedding
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c    domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.Start, &c.End, &c.Position, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("%w: chunk %s has a %d-byte embedding", domain.ErrIndexCorrupt, c.ID, len(blob))
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc    domain.Document
		format string
	)
	err := row.Scan(&doc.ID, &doc.SourceID, &format, &doc.Content, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Format = domain.Format(format)
	return &doc, nil
}
