package domain

import (
	"time"
	"unicode/utf8"
)

// QuestionState is a stage of the question-answering state machine.
type QuestionState string

// States in transition order.
const (
	StateIdle           QuestionState = "IDLE"
	StateEmbeddingQuery QuestionState = "EMBEDDING_QUERY"
	StateRetrieving     QuestionState = "RETRIEVING"
	StateAssembling     QuestionState = "ASSEMBLING"
	StateGenerating     QuestionState = "GENERATING"
	StateDone           QuestionState = "DONE"
	StateFailed         QuestionState = "FAILED"
)

// String returns the string representation.
func (s QuestionState) String() string {
	return string(s)
}

// IsTerminal returns true for DONE and FAILED.
func (s QuestionState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// ConversationTurn is one completed exchange in a session history.
type ConversationTurn struct {
	// Question is the query text.
	Question string

	// ChunkIDs are the chunks retrieved into context.
	ChunkIDs []string

	// Answer is the generated text, or the user-visible failure message.
	Answer string

	// Failed is true when the question ended in FAILED.
	Failed bool

	// Timestamp is when the turn completed.
	Timestamp time.Time
}

// Size returns the character cost of the turn against a history budget.
func (t ConversationTurn) Size() int {
	return utf8.RuneCountInString(t.Question) + utf8.RuneCountInString(t.Answer)
}

// Answer is the result of a successful question.
type Answer struct {
	// ConversationID is the session the turn was recorded in.
	ConversationID string

	// Text is the generated answer.
	Text string

	// Sources are the citations in inclusion order.
	Sources []Citation

	// UsedContext is false when the fallback template was used.
	UsedContext bool

	// Warnings carries degraded-mode notices (e.g. a rebuilt index).
	Warnings []string

	// Attempts is the number of generation calls made.
	Attempts int

	// Model is the generation model that produced the answer.
	Model string
}
