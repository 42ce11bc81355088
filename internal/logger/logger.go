// Package logger provides levelled logging for the docqa CLI.
// Debug and info messages are printed only in verbose mode (the --verbose
// flag) and trace the ingestion and question pipelines. Warnings and errors
// are always printed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	mu      sync.RWMutex
	outMu   sync.Mutex
	verbose bool
	colored bool
	output  io.Writer = os.Stderr
)

var (
	debugColor   = color.New(color.FgHiBlack)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	sectionColor = color.New(color.FgMagenta, color.Bold)
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetColor enables coloured level prefixes. The CLI turns this on when
// stderr is a terminal.
func SetColor(on bool) {
	mu.Lock()
	defer mu.Unlock()
	colored = on
	for _, c := range []*color.Color{debugColor, infoColor, warnColor, errorColor, sectionColor} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// write prints one line. Caller holds mu.
func write(c *color.Color, prefix, format string, args ...any) {
	if colored {
		prefix = c.Sprint(prefix)
	}
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(output, prefix+" "+format+"\n", args...)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		write(debugColor, "[DEBUG]", format, args...)
	}
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		header := fmt.Sprintf("=== %s ===", name)
		if colored {
			header = sectionColor.Sprint(header)
		}
		outMu.Lock()
		fmt.Fprintf(output, "\n%s\n", header)
		outMu.Unlock()
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		write(infoColor, "[INFO]", format, args...)
	}
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(warnColor, "[WARN]", format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(errorColor, "[ERROR]", format, args...)
}
