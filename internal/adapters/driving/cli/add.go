package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

var (
	addSource string
	addFormat string
	addURLs   []string
)

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Add documents to the corpus",
	Long: `Ingests files and directories into the corpus. Directories are walked
recursively and every supported file (.txt, .md, .html, .pdf, .docx) is added.

Unchanged documents are skipped. A file that fails to parse is reported but
does not stop the rest of the batch.

Use '-' to read a single document from stdin:
  cat notes.md | docqa add - --source notes --format markdown

Use --url to download pages instead; each page is keyed by its URL:
  docqa add --url https://example.com/docs/install`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(addURLs) > 0 {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addSource, "source", "", "source id for a document read from stdin")
	addCmd.Flags().StringVar(&addFormat, "format", string(domain.FormatText), "format of a document read from stdin")
	addCmd.Flags().StringArrayVar(&addURLs, "url", nil, "page to download and add (repeatable)")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	if len(args) == 1 && args[0] == "-" {
		return addFromStdin(cmd)
	}

	report := &domain.BatchReport{}
	if len(args) > 0 {
		paths, err := ingestionService.IngestPaths(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("add failed: %w", err)
		}
		report.Results = append(report.Results, paths.Results...)
		report.Failures = append(report.Failures, paths.Failures...)
	}
	if len(addURLs) > 0 {
		pages, err := ingestionService.IngestURLs(cmd.Context(), addURLs)
		if err != nil {
			return fmt.Errorf("add failed: %w", err)
		}
		report.Results = append(report.Results, pages.Results...)
		report.Failures = append(report.Failures, pages.Failures...)
	}
	return printReport(cmd, report)
}

// printReport lists each outcome of a batch and fails if any document did.
func printReport(cmd *cobra.Command, report *domain.BatchReport) error {
	for _, res := range report.Results {
		switch res.Status {
		case domain.IngestAdded:
			cmd.Printf("%s %s (%d chunks)\n", color.GreenString("added"), res.SourceID, res.ChunkCount)
		case domain.IngestEmpty:
			cmd.Printf("%s %s (no text)\n", color.YellowString("empty"), res.SourceID)
		default:
			cmd.Printf("%s %s\n", color.HiBlackString(string(res.Status)), res.SourceID)
		}
	}
	for _, f := range report.Failures {
		cmd.Printf("%s %s: %v\n", color.RedString("failed"), f.SourceID, f.Err)
	}

	cmd.Printf("\n%d added, %d unchanged, %d empty, %d failed\n",
		report.Count(domain.IngestAdded),
		report.Count(domain.IngestUnchanged),
		report.Count(domain.IngestEmpty),
		len(report.Failures))

	if report.HasFailures() {
		return fmt.Errorf("%d document(s) failed", len(report.Failures))
	}
	return nil
}

func addFromStdin(cmd *cobra.Command) error {
	if strings.TrimSpace(addSource) == "" {
		return errors.New("--source is required when reading from stdin")
	}
	format := domain.Format(addFormat)
	if !format.IsValid() {
		return fmt.Errorf("unknown format %q", addFormat)
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	res, err := ingestionService.AddRaw(cmd.Context(), &domain.RawDocument{
		SourceID: addSource,
		Format:   format,
		Content:  data,
	})
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	cmd.Printf("%s %s as %s (%d chunks)\n", res.Status, res.SourceID, res.DocumentID, res.ChunkCount)
	return nil
}
