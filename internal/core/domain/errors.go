package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates the pipeline configuration was rejected.
	ErrInvalidConfig = errors.New("invalid configuration")

	// Ingestion Errors.

	// ErrUnsupportedFormat indicates no normaliser is registered for a format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParseFailure indicates a normaliser could not extract text.
	ErrParseFailure = errors.New("parse failure")

	// ErrIOFailure indicates the document bytes could not be read or persisted.
	ErrIOFailure = errors.New("io failure")

	// Embedding Errors.

	// ErrEmbeddingUnavailable indicates the embedding capability cannot be reached.
	// Retried with backoff at the call site before surfacing.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch indicates a vector does not match the corpus dimensionality.
	// This is a fatal configuration error and is never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Retrieval Errors.

	// ErrIndexCorrupt indicates the persisted chunk index is inconsistent.
	// Triggers a rebuild from the document table.
	ErrIndexCorrupt = errors.New("index corrupt")

	// Generation Errors.

	// ErrGenerationUnavailable indicates the generation capability failed or is at capacity.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrGenerationTimeout indicates a generation request exceeded its deadline.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable) ||
		errors.Is(err, ErrGenerationTimeout)
}

// IngestionError records the failure of a single document in a batch.
type IngestionError struct {
	// SourceID identifies the failed document.
	SourceID string

	// Err is the underlying cause (ErrUnsupportedFormat, ErrParseFailure, ErrIOFailure, ...).
	Err error
}

// Error implements error.
func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.SourceID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IngestionError) Unwrap() error {
	return e.Err
}

// QuestionError is returned by Ask when a question ends in the FAILED state.
type QuestionError struct {
	// State is the stage in which the question failed.
	State QuestionState

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *QuestionError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

// Unwrap returns the underlying cause.
func (e *QuestionError) Unwrap() error {
	return e.Err
}
