// Package sqlite stores the corpus in a single SQLite database using
// modernc.org/sqlite, a pure Go driver, so the binary needs no cgo.
//
// Tables:
//
//   - documents: one row per ingested source with its normalised text
//   - chunks: offsets, text and the little-endian float32 embedding blob
//   - corpus_meta: embedding model and dimensionality
//
// The schema is versioned by the NNN_name.up.sql files in migrations/,
// applied in order and recorded in schema_migrations. The database runs in
// WAL mode; replacing or deleting a document is a single transaction.
package sqlite
