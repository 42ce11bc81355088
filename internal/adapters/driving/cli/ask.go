package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

var (
	askConversation string
	askModel        string
	askTopK         int
	askJSON         bool
	askInteractive  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the corpus",
	Long: `Answers a question using the most relevant passages of the corpus as context.
The passages used are listed as numbered sources below the answer.

With --interactive, questions are read line by line from stdin and share one
conversation, so follow-up questions can refer to earlier answers. Enter an
empty line or 'exit' to stop.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if askInteractive {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue an existing conversation")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "generation model for this question")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages to retrieve (0 = configured default)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "read questions from stdin")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	if askInteractive {
		return runAskInteractive(cmd)
	}

	answer, err := ask(cmd, strings.Join(args, " "), askConversation)
	if err != nil {
		return err
	}
	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	return nil
}

func runAskInteractive(cmd *cobra.Command) error {
	conversationID := askConversation
	defer func() {
		if conversationID != "" {
			queryService.EndConversation(conversationID)
		}
	}()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print(color.CyanString("> "))
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" || question == "exit" || question == "quit" {
			return nil
		}

		answer, err := ask(cmd, question, conversationID)
		if err != nil {
			cmd.PrintErrln(color.RedString("error: %v", err))
			continue
		}
		conversationID = answer.ConversationID
		cmd.Println()
	}
}

// ask runs one question and renders the answer unless JSON output was requested.
func ask(cmd *cobra.Command, question, conversationID string) (*domain.Answer, error) {
	streamed := false
	req := driving.AskRequest{
		Question:       question,
		ConversationID: conversationID,
		TopK:           askTopK,
		Model:          askModel,
	}
	if !askJSON {
		req.OnToken = func(token string) {
			streamed = true
			cmd.Print(token)
		}
	}

	answer, err := queryService.Ask(cmd.Context(), req)
	if err != nil {
		if streamed {
			cmd.Println()
		}
		return nil, fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return answer, nil
	}

	if streamed {
		cmd.Println()
	} else {
		cmd.Println(answer.Text)
	}
	renderSources(cmd, answer)
	for _, w := range answer.Warnings {
		printWarning(cmd, w)
	}
	return answer, nil
}

func renderSources(cmd *cobra.Command, answer *domain.Answer) {
	if !answer.UsedContext {
		cmd.Println(color.HiBlackString("\n(no relevant documentation found)"))
		return
	}

	cmd.Println()
	cmd.Println(color.New(color.Bold).Sprint("Sources:"))
	for _, src := range answer.Sources {
		line := fmt.Sprintf("  [%d] %s (%.2f)", src.Index, src.SourceID, src.Score)
		if src.Truncated {
			line += " (truncated)"
		}
		cmd.Println(color.CyanString(line))
	}
}

type citationJSON struct {
	Index      int     `json:"index"`
	SourceID   string  `json:"source_id"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	Truncated  bool    `json:"truncated,omitempty"`
}

type answerJSON struct {
	ConversationID string         `json:"conversation_id"`
	Answer         string         `json:"answer"`
	UsedContext    bool           `json:"used_context"`
	Sources        []citationJSON `json:"sources"`
	Warnings       []string       `json:"warnings,omitempty"`
	Model          string         `json:"model,omitempty"`
	Attempts       int            `json:"attempts"`
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	out := answerJSON{
		ConversationID: answer.ConversationID,
		Answer:         answer.Text,
		UsedContext:    answer.UsedContext,
		Sources:        make([]citationJSON, len(answer.Sources)),
		Warnings:       answer.Warnings,
		Model:          answer.Model,
		Attempts:       answer.Attempts,
	}
	for i, c := range answer.Sources {
		out.Sources[i] = citationJSON{
			Index:      c.Index,
			SourceID:   c.SourceID,
			DocumentID: c.DocumentID,
			ChunkID:    c.ChunkID,
			Score:      c.Score,
			Truncated:  c.Truncated,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
