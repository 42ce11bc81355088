// Package cli provides the docqa command-line interface.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

var version = "dev"

// Global flags.
var (
	verbose   bool
	ephemeral bool
	noColor   bool
)

// Driving ports used by the commands. Settings are loaded on their own so
// that a broken provider configuration can still be repaired.
var (
	settingsService  driving.SettingsService
	ingestionService driving.IngestionService
	queryService     driving.QueryService
	indexService     driving.IndexService
)

// Options carries the global flags to a Loader.
type Options struct {
	// Ephemeral keeps configuration and corpus in memory.
	Ephemeral bool
}

// Runtime holds the corpus-backed services built by a Loader.
type Runtime struct {
	Ingestion driving.IngestionService
	Query     driving.QueryService
	Index     driving.IndexService

	// Warnings are degraded-mode notices shown once per process.
	Warnings []string

	// Close releases stores and provider clients. May be nil.
	Close func() error
}

// Loader builds services after flags are parsed.
type Loader interface {
	Settings(opts Options) (driving.SettingsService, error)
	Runtime(ctx context.Context, opts Options) (*Runtime, error)
}

var (
	loader       Loader
	closeRuntime func() error
)

// SetLoader installs the composition root.
func SetLoader(l Loader) {
	loader = l
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about your documentation",
	Long: `docqa indexes a project's documentation locally and answers questions
about it with a language model, citing the passages it used.

Add documents with 'docqa add', then ask with 'docqa ask'.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetColor(!noColor && isTerminal(os.Stderr))
		color.NoColor = noColor || !isTerminal(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep settings and corpus in memory")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
}

// Execute runs the root command and releases services on exit.
func Execute(ctx context.Context) error {
	defer shutdown()
	return rootCmd.ExecuteContext(ctx)
}

func shutdown() {
	if closeRuntime == nil {
		return
	}
	if err := closeRuntime(); err != nil {
		logger.Warn("Closing services: %v", err)
	}
	closeRuntime = nil
}

// loadSettings returns the settings service, building it on first use.
func loadSettings() (driving.SettingsService, error) {
	if settingsService != nil {
		return settingsService, nil
	}
	if loader == nil {
		return nil, errors.New("settings service not configured")
	}
	svc, err := loader.Settings(Options{Ephemeral: ephemeral})
	if err != nil {
		return nil, err
	}
	settingsService = svc
	return svc, nil
}

// loadRuntime populates the corpus-backed services on first use.
func loadRuntime(cmd *cobra.Command) error {
	if ingestionService != nil && queryService != nil && indexService != nil {
		return nil
	}
	if loader == nil {
		return errors.New("services not configured")
	}
	rt, err := loader.Runtime(cmd.Context(), Options{Ephemeral: ephemeral})
	if err != nil {
		return err
	}
	ingestionService = rt.Ingestion
	queryService = rt.Query
	indexService = rt.Index
	closeRuntime = rt.Close
	for _, w := range rt.Warnings {
		printWarning(cmd, w)
	}
	return nil
}

func printWarning(cmd *cobra.Command, msg string) {
	cmd.PrintErrln(color.YellowString("warning: %s", msg))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
