package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure Source implements the interface.
var _ driven.DocumentSource = (*Source)(nil)

const (
	// DefaultMaxFileSize skips files larger than 20 MiB.
	DefaultMaxFileSize int64 = 20 << 20

	// DefaultDebounce is how long a path must stay quiet before its change is emitted.
	DefaultDebounce = 300 * time.Millisecond
)

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("filesystem source closed")

// Source reads documents from the local filesystem. Source identifiers are
// absolute, cleaned paths so that a file added by path and later seen by the
// watcher map to the same document.
type Source struct {
	maxFileSize int64
	debounce    time.Duration

	mu       sync.Mutex
	closed   bool
	watchers map[*fsnotify.Watcher]struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithMaxFileSize sets the largest file that will be read.
func WithMaxFileSize(n int64) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithDebounce sets the watch debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// New creates a filesystem source.
func New(opts ...Option) *Source {
	s := &Source{
		maxFileSize: DefaultMaxFileSize,
		debounce:    DefaultDebounce,
		watchers:    make(map[*fsnotify.Watcher]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads every supported document under paths. Directories are walked
// recursively, skipping hidden entries and unsupported extensions. A file
// named explicitly with an unsupported extension is reported as a failure.
func (s *Source) Load(ctx context.Context, paths []string) ([]domain.RawDocument, []domain.IngestionError) {
	var (
		docs     []domain.RawDocument
		failures []domain.IngestionError
		seen     = make(map[string]bool)
	)

	fail := func(path string, err error) {
		failures = append(failures, domain.IngestionError{SourceID: path, Err: err})
	}

	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		raw, err := s.readFile(path)
		if err != nil {
			fail(path, err)
			return
		}
		docs = append(docs, *raw)
	}

	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			fail(p, fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
			continue
		}

		info, err := os.Stat(abs)
		if err != nil {
			fail(abs, fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
			continue
		}

		if !info.IsDir() {
			if _, ok := domain.FormatFromPath(abs); !ok {
				fail(abs, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(abs)))
				continue
			}
			add(abs)
			continue
		}

		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				fail(path, fmt.Errorf("%w: %v", domain.ErrIOFailure, err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if path != abs && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if _, ok := domain.FormatFromPath(path); ok {
				add(path)
			}
			return nil
		})
		if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
			fail(abs, fmt.Errorf("%w: %v", domain.ErrIOFailure, walkErr))
		}
	}

	logger.Debug("Loaded %d files (%d failed) from %d paths", len(docs), len(failures), len(paths))
	return docs, failures
}

// readFile reads one supported file into a RawDocument.
func (s *Source) readFile(path string) (*domain.RawDocument, error) {
	format, ok := domain.FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	if info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("%w: file is %d bytes, limit %d", domain.ErrIOFailure, info.Size(), s.maxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}

	return &domain.RawDocument{SourceID: path, Format: format, Content: content}, nil
}

// Watch streams changes to supported files under root until ctx is
// cancelled. Bursts of events on one path are collapsed: a change is
// emitted once the path has been quiet for the debounce interval.
func (s *Source) Watch(ctx context.Context, root string) (<-chan domain.RawDocumentChange, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", abs)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	s.watchers[watcher] = struct{}{}
	s.mu.Unlock()

	if err := addTree(watcher, abs); err != nil {
		s.release(watcher)
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	out := make(chan domain.RawDocumentChange)
	go s.watchLoop(ctx, watcher, out)

	logger.Info("Watching %s", abs)
	return out, nil
}

func (s *Source) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- domain.RawDocumentChange) {
	defer close(out)
	defer s.release(watcher)

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(s.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if isHidden(filepath.Base(event.Name)) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					s.watchNewDir(watcher, event.Name, pending)
					timer.Reset(s.debounce)
					continue
				}
			}
			pending[event.Name] |= event.Op
			timer.Reset(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error: %v", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)

			for _, p := range paths {
				change := s.handleFsEvent(fsnotify.Event{Name: p, Op: pending[p]})
				if change == nil {
					continue
				}
				select {
				case out <- *change:
				case <-ctx.Done():
					return
				}
			}
			pending = make(map[string]fsnotify.Op)
		}
	}
}

// watchNewDir starts watching a directory created after Watch began and
// queues the files already inside it, which produced no events of their own.
func (s *Source) watchNewDir(watcher *fsnotify.Watcher, dir string, pending map[string]fsnotify.Op) {
	if err := addTree(watcher, dir); err != nil {
		logger.Warn("watch %s: %v", dir, err)
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			pending[path] |= fsnotify.Create
		}
		return nil
	})
}

// handleFsEvent converts a (possibly merged) event into a change. The
// file's current state decides the outcome: a missing file is a deletion.
// Returns nil for directories, hidden and unsupported files, and
// attribute-only events.
func (s *Source) handleFsEvent(event fsnotify.Event) *domain.RawDocumentChange {
	if isHidden(filepath.Base(event.Name)) || event.Op == fsnotify.Chmod {
		return nil
	}
	format, ok := domain.FormatFromPath(event.Name)
	if !ok {
		return nil
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return &domain.RawDocumentChange{
			Type:     domain.ChangeDeleted,
			Document: domain.RawDocument{SourceID: event.Name, Format: format},
		}
	}
	if info.IsDir() {
		return nil
	}

	var changeType domain.ChangeType
	switch {
	case event.Has(fsnotify.Create):
		changeType = domain.ChangeCreated
	case event.Has(fsnotify.Write):
		changeType = domain.ChangeUpdated
	default:
		return nil
	}

	raw, err := s.readFile(event.Name)
	if err != nil {
		logger.Warn("read %s: %v", event.Name, err)
		return nil
	}
	return &domain.RawDocumentChange{Type: changeType, Document: *raw}
}

// Close stops every active watch. Later calls to Watch fail with ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	watchers := s.watchers
	s.watchers = make(map[*fsnotify.Watcher]struct{})
	s.mu.Unlock()

	var errs []error
	for w := range watchers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Source) release(w *fsnotify.Watcher) {
	s.mu.Lock()
	_, ok := s.watchers[w]
	delete(s.watchers, w)
	s.mu.Unlock()
	if ok {
		_ = w.Close()
	}
}

// addTree watches dir and every non-hidden directory below it.
// fsnotify is not recursive.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// isHidden reports whether a file or directory name starts with a dot.
// "." and ".." are not hidden.
func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}
