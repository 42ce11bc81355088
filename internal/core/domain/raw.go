package domain

// RawDocument represents un-normalised bytes handed to the ingestion API.
// It is the input of the format registry before normalisation.
type RawDocument struct {
	// SourceID identifies where the bytes came from (file path, URL).
	SourceID string

	// Format selects the normaliser.
	Format Format

	// Content is the raw bytes.
	Content []byte
}

// IngestStatus describes the outcome of ingesting one document.
type IngestStatus string

// Possible ingestion outcomes.
const (
	// IngestAdded means new or changed content was chunked and embedded.
	IngestAdded IngestStatus = "added"

	// IngestUnchanged means the stored version already matched.
	IngestUnchanged IngestStatus = "unchanged"

	// IngestEmpty means the document had no text and produced zero chunks.
	IngestEmpty IngestStatus = "empty"
)

// IngestResult is the outcome for a single successfully ingested document.
type IngestResult struct {
	DocumentID string
	SourceID   string
	Status     IngestStatus
	ChunkCount int
}

// BatchReport aggregates a batch ingestion.
// A failed document never aborts the batch.
type BatchReport struct {
	Results  []IngestResult
	Failures []IngestionError
}

// Count returns the number of results with the given status.
func (r *BatchReport) Count(status IngestStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// HasFailures returns true if any document failed.
func (r *BatchReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// ChangeType describes a change observed in a watched document source.
type ChangeType string

// Change types.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// RawDocumentChange is one observed change. Content is empty for deletions.
type RawDocumentChange struct {
	Type     ChangeType
	Document RawDocument
}
