package file

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.PromptStore = (*PromptStore)(nil)

const promptExt = ".tmpl"

var readme = template.Must(template.New("README.md").Parse(`# docqa prompts

Templates used to build the prompt sent to the language model.
Delete a file to restore its default on the next run.

## Files
{{range .}}
- {{.}}` + promptExt + `{{end}}

## Fields

Templates use Go text/template syntax.

- {{"{{"}}.ProjectName{{"}}"}} and {{"{{"}}.ProjectDescription{{"}}"}}: project settings, may be empty
- {{"{{"}}.History{{"}}"}}: recent conversation turns, oldest first
- {{"{{"}}.Context{{"}}"}}: retrieved passages, answer_with_context only
- {{"{{"}}.Question{{"}}"}}: the user's question
`))

// PromptStore reads answer templates from <dir>/<name>.tmpl. The directory
// is seeded with the defaults on first Load; files that already exist are
// user edits and are left alone. A missing or blank file, or a directory
// that cannot be prepared, falls back to the default.
type PromptStore struct {
	dir      string
	defaults map[string]string
	prepare  func() error
	cache    sync.Map
}

// NewPromptStore creates a store over dir, or HomeDir()/prompts when dir
// is empty. It performs no I/O.
func NewPromptStore(dir string, defaults map[string]string) (*PromptStore, error) {
	if dir == "" {
		home, err := HomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, "prompts")
	}
	s := &PromptStore{dir: dir, defaults: maps.Clone(defaults)}
	s.prepare = sync.OnceValue(s.seed)
	return s, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string { return s.dir }

// Load returns the template called name. Results are cached until Reload.
func (s *PromptStore) Load(name string) (string, error) {
	if v, ok := s.cache.Load(name); ok {
		return v.(string), nil
	}
	def, hasDefault := s.defaults[name]

	if err := s.prepare(); err != nil {
		if hasDefault {
			return def, nil
		}
		return "", fmt.Errorf("prompt %q: %w", name, err)
	}

	data, err := os.ReadFile(s.path(name))
	text := strings.TrimSpace(string(data))
	switch {
	case err == nil && text != "":
		v, _ := s.cache.LoadOrStore(name, text)
		return v.(string), nil
	case hasDefault:
		return def, nil
	case err == nil || errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
	default:
		return "", fmt.Errorf("reading prompt %q: %w", name, err)
	}
}

// Reload drops cached templates so edits on disk are picked up.
func (s *PromptStore) Reload() {
	s.cache.Clear()
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+promptExt)
}

func (s *PromptStore) seed() error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating prompt directory: %w", err)
	}

	names := slices.Sorted(maps.Keys(s.defaults))
	for _, name := range names {
		if err := writeIfMissing(s.path(name), func(f *os.File) error {
			_, err := f.WriteString(s.defaults[name])
			return err
		}); err != nil {
			return fmt.Errorf("writing default prompt %q: %w", name, err)
		}
	}
	return writeIfMissing(filepath.Join(s.dir, "README.md"), func(f *os.File) error {
		return readme.Execute(f, names)
	})
}

// writeIfMissing creates path exclusively, so an existing file is never touched.
func writeIfMissing(path string, write func(*os.File) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
