// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - CorpusStore: Durable document and chunk tables (SQLite or files)
//   - EmbeddingService: Generates vector embeddings for chunks and questions
//   - Normaliser: Transforms raw bytes of one format into plain text
//   - NormaliserRegistry: Selects the normaliser for a format tag
//   - PostProcessorPipeline: Splits normalised text into chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Answer generation. Without it, ingestion and index
//     maintenance still work but questions fail with ErrGenerationUnavailable.
//   - PromptStore: Customised prompt templates. Defaults are embedded.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
