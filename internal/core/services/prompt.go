package services

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

// DefaultAnswerWithContextPrompt is used when no PromptStore is configured.
const DefaultAnswerWithContextPrompt = `You are a helpful assistant for {{if .ProjectName}}the {{.ProjectName}} project{{else}}this project{{end}}.
{{- if .ProjectDescription}}
Project description: {{.ProjectDescription}}
{{- end}}
Answer the question using only the documentation excerpts below. Cite excerpts by their [n] number.
If the excerpts do not contain the answer, say so.
{{- if .History}}

Conversation so far:
{{.History}}
{{- end}}

Documentation:
{{.Context}}
Question: {{.Question}}

Answer:`

// DefaultAnswerWithoutContextPrompt is the fallback template when retrieval found nothing usable.
const DefaultAnswerWithoutContextPrompt = `You are a helpful assistant for {{if .ProjectName}}the {{.ProjectName}} project{{else}}this project{{end}}.
{{- if .ProjectDescription}}
Project description: {{.ProjectDescription}}
{{- end}}
No documentation relevant to this question has been loaded. Answer from general knowledge,
and say clearly that the answer is not based on the project's documentation.
{{- if .History}}

Conversation so far:
{{.History}}
{{- end}}

Question: {{.Question}}

Answer:`

// DefaultPrompts returns the built-in templates keyed by prompt name, for
// seeding a PromptStore.
func DefaultPrompts() map[string]string {
	return map[string]string{
		driven.PromptAnswerWithContext:    DefaultAnswerWithContextPrompt,
		driven.PromptAnswerWithoutContext: DefaultAnswerWithoutContextPrompt,
	}
}

// promptData is the template input.
type promptData struct {
	ProjectName        string
	ProjectDescription string
	History            string
	Context            string
	Question           string
}

// PromptBuilder renders the answer prompts.
type PromptBuilder struct {
	project     domain.ProjectSettings
	promptStore driven.PromptStore
}

// NewPromptBuilder creates a prompt builder. promptStore may be nil.
func NewPromptBuilder(project domain.ProjectSettings, promptStore driven.PromptStore) *PromptBuilder {
	return &PromptBuilder{project: project, promptStore: promptStore}
}

// Build renders the context-aware template when ctx has context, and the
// fallback template otherwise.
func (b *PromptBuilder) Build(question string, ctx domain.AssembledContext, history []domain.ConversationTurn) (string, error) {
	data := promptData{
		ProjectName:        b.project.Name,
		ProjectDescription: b.project.Description,
		History:            renderHistory(history),
		Question:           strings.TrimSpace(question),
	}

	name, fallback := driven.PromptAnswerWithoutContext, DefaultAnswerWithoutContextPrompt
	if ctx.HasContext() {
		name, fallback = driven.PromptAnswerWithContext, DefaultAnswerWithContextPrompt
		data.Context = ctx.Text
	}

	text := b.loadPrompt(name, fallback)
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		logger.Warn("prompt %s does not parse, using default: %v", name, err)
		tmpl = template.Must(template.New(name).Parse(fallback))
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return out.String(), nil
}

// loadPrompt loads a prompt from the store, falling back to the default if unavailable.
func (b *PromptBuilder) loadPrompt(name, fallback string) string {
	if b.promptStore == nil {
		return fallback
	}
	prompt, err := b.promptStore.Load(name)
	if err != nil || strings.TrimSpace(prompt) == "" {
		return fallback
	}
	return prompt
}

func renderHistory(turns []domain.ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}
