package logger

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capture redirects output for the duration of a test.
func capture(t *testing.T, verboseMode bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseMode)
	t.Cleanup(func() {
		SetVerbose(false)
		SetColor(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestVerboseLevels(t *testing.T) {
	buf := capture(t, true)

	Debug("test message %s", "arg")
	Info("info message %d", 42)
	Section("Test Section")

	assert.Equal(t, "[DEBUG] test message arg\n[INFO] info message 42\n\n=== Test Section ===\n", buf.String())
}

func TestQuietSuppressesDebugAndInfo(t *testing.T) {
	buf := capture(t, false)

	Debug("hidden")
	Info("hidden")
	Section("hidden")

	assert.Empty(t, buf.String())
}

func TestWarnAndErrorAlwaysPrinted(t *testing.T) {
	buf := capture(t, false)

	Warn("warning message")
	Error("failed: %v", "boom")

	assert.Equal(t, "[WARN] warning message\n[ERROR] failed: boom\n", buf.String())
}

func TestColor(t *testing.T) {
	buf := capture(t, false)
	SetColor(true)

	Warn("careful")

	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.True(t, strings.HasSuffix(out, " careful\n"))
}

func TestConcurrentAccess(t *testing.T) {
	capture(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetVerbose(true)
			Debug("concurrent %d", i)
			Warn("concurrent %d", i)
			IsVerbose()
			SetVerbose(false)
		}()
	}
	wg.Wait()
}
