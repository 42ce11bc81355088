package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Keep the corpus in sync with a directory",
	Long: `Watches a directory tree and re-ingests files as they are created or modified.
Deleted files are removed from the corpus. Runs until interrupted.

Add the directory with 'docqa add' first to pick up existing files.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := loadRuntime(cmd); err != nil {
		return err
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])

	err := ingestionService.Watch(cmd.Context(), args[0], func(ev driving.WatchEvent) {
		printWatchEvent(cmd, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}

func printWatchEvent(cmd *cobra.Command, ev driving.WatchEvent) {
	if ev.Err != nil {
		cmd.Printf("%s %s: %v\n", color.RedString("failed"), ev.SourceID, ev.Err)
		return
	}
	if ev.Change == domain.ChangeDeleted {
		cmd.Printf("%s %s\n", color.YellowString("removed"), ev.SourceID)
		return
	}
	if ev.Result == nil {
		return
	}
	switch ev.Result.Status {
	case domain.IngestAdded:
		cmd.Printf("%s %s (%d chunks)\n", color.GreenString(string(ev.Change)), ev.SourceID, ev.Result.ChunkCount)
	default:
		cmd.Printf("%s %s (%s)\n", color.HiBlackString(string(ev.Change)), ev.SourceID, ev.Result.Status)
	}
}
