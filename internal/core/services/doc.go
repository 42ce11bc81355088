// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The retrieval-augmented pipeline lives here:
//
//   - EmbeddingStore: the corpus as an immutable snapshot plus a single writer
//   - Ranker: per-document capping and ordering of similarity results
//   - Assembler: packs ranked chunks into a bounded prompt context
//   - Orchestrator: the per-question state machine with bounded retries
//   - Session: a conversation's bounded history
//
// Services are pure Go with no CGO.
package services
