package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the embedding index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the persisted index for inconsistencies",
	Args:  cobra.NoArgs,
	RunE:  runIndexVerify,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-chunk and re-embed every document",
	Long: `Rebuilds the chunk index from the stored documents. Use this after changing
the embedding model or chunking settings.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexVerifyCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	stats, err := indexService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	cmd.Printf("Backend:    %s\n", stats.Backend)
	cmd.Printf("Model:      %s\n", stats.Model)
	cmd.Printf("Dimensions: %d\n", stats.Dimensions)
	cmd.Printf("Documents:  %d\n", stats.Documents)
	cmd.Printf("Chunks:     %d\n", stats.Chunks)
	if stats.Degraded {
		cmd.Println(color.YellowString("Index was rebuilt on open."))
	}
	return nil
}

func runIndexVerify(cmd *cobra.Command, _ []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	problems, err := indexService.Verify(cmd.Context())
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if len(problems) == 0 {
		cmd.Println(color.GreenString("Index is consistent."))
		return nil
	}
	for _, p := range problems {
		cmd.Printf("  %s\n", p)
	}
	return fmt.Errorf("%d problem(s) found; run 'docqa index rebuild'", len(problems))
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	cmd.Println("Rebuilding index...")
	if err := indexService.Rebuild(cmd.Context()); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	stats, err := indexService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	cmd.Printf("Rebuilt %d chunks across %d documents.\n", stats.Chunks, stats.Documents)
	return nil
}
