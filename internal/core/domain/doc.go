// Package domain defines the core business entities for docqa.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A normalised document and its format tag
//   - Chunk: An overlapping span of a document with its embedding
//   - RetrievalResult: A scored chunk produced by a query
//   - AssembledContext: The bounded prompt context built from ranked results
//   - ConversationTurn: One question/answer exchange in a session history
//   - Settings: The typed, validated pipeline configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
