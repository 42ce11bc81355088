package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

const timeLayout = "2006-01-02 15:04:05"

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Inspect documents in the corpus",
	Long:    `List documents in the corpus or show one by id or source.`,
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsList,
}

var documentsShowCmd = &cobra.Command{
	Use:   "show [doc-id|source]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsShow,
}

var removeAll bool

var removeCmd = &cobra.Command{
	Use:   "remove [doc-id|source]...",
	Short: "Remove documents from the corpus",
	Long: `Removes documents and their chunks from the corpus. Each argument may be a
document id or the source it was added from. Unknown documents are skipped.

With --all the whole corpus is emptied in one step.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if removeAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runRemove,
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	rootCmd.AddCommand(documentsCmd)

	removeCmd.Flags().BoolVar(&removeAll, "all", false, "remove every document")
	rootCmd.AddCommand(removeCmd)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	docs, err := ingestionService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents in the corpus.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Source: %s\n", docs[i].SourceID)
		cmd.Printf("    Format: %s, %d chunks\n", docs[i].Format, docs[i].ChunkCount)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	doc, err := lookupDocument(cmd, args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Source:     %s\n", doc.SourceID)
	cmd.Printf("  Format:     %s\n", doc.Format)
	cmd.Printf("  Version:    %s\n", doc.Version)
	cmd.Printf("  Characters: %d\n", doc.Characters)
	cmd.Printf("  Chunks:     %d\n", doc.ChunkCount)
	cmd.Printf("  Created:    %s\n", doc.CreatedAt.Format(timeLayout))
	cmd.Printf("  Updated:    %s\n", doc.UpdatedAt.Format(timeLayout))
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	if removeAll {
		n, err := ingestionService.RemoveAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to clear corpus: %w", err)
		}
		cmd.Printf("Removed %d documents\n", n)
		return nil
	}

	for _, arg := range args {
		doc, err := lookupDocument(cmd, arg)
		if errors.Is(err, domain.ErrNotFound) {
			cmd.Printf("%s: not in corpus\n", arg)
			continue
		}
		if err != nil {
			return err
		}
		if err := ingestionService.RemoveDocument(cmd.Context(), doc.ID); err != nil {
			return fmt.Errorf("failed to remove %s: %w", arg, err)
		}
		cmd.Printf("Removed %s (%s)\n", doc.SourceID, doc.ID)
	}
	return nil
}

// lookupDocument resolves a document id or source. Relative file paths are
// also tried in absolute form, which is how files are recorded.
func lookupDocument(cmd *cobra.Command, ref string) (*driving.DocumentSummary, error) {
	doc, err := ingestionService.Get(cmd.Context(), ref)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return doc, err
	}
	abs, absErr := filepath.Abs(ref)
	if absErr != nil || abs == ref {
		return nil, err
	}
	return ingestionService.Get(cmd.Context(), abs)
}
