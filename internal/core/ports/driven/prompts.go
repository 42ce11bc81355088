package driven

// PromptStore supplies user-editable answer templates.
type PromptStore interface {
	// Load returns the template called name, or domain.ErrNotFound.
	Load(name string) (string, error)

	// Reload drops cached templates.
	Reload()
}

// Prompt names. Templates use text/template syntax.
const (
	// PromptAnswerWithContext answers from retrieved passages.
	// Fields: .ProjectName, .ProjectDescription, .History, .Context, .Question.
	PromptAnswerWithContext = "answer_with_context"

	// PromptAnswerWithoutContext is the fallback when nothing usable was retrieved.
	// Fields: .ProjectName, .ProjectDescription, .History, .Question.
	PromptAnswerWithoutContext = "answer_without_context"
)
