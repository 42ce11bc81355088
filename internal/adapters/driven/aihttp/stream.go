package aihttp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
)

// errStop ends a scan early without reporting an error.
var errStop = errors.New("stop")

// Stop can be returned by a scan callback to end the stream cleanly.
func Stop() error { return errStop }

// maxLine bounds a single streamed line.
const maxLine = 1 << 20

// ScanLines calls fn for each non-empty line of a newline-delimited JSON
// stream. A broken stream is classified like a transport failure.
func ScanLines(ctx context.Context, body io.Reader, kind Kind, provider string, fn func(line []byte) error) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return Classify(ctx, err, kind, provider)
	}
	return nil
}

// ScanEvents calls fn with the data payload of each server-sent event.
// Comment lines and event names are skipped.
func ScanEvents(ctx context.Context, body io.Reader, kind Kind, provider string, fn func(data []byte) error) error {
	return ScanLines(ctx, body, kind, provider, func(line []byte) error {
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			return nil
		}
		return fn(bytes.TrimSpace(data))
	})
}
