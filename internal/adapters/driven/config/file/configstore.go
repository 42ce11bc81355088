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

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// HomeEnv overrides the docqa home directory.
const HomeEnv = "DOCQA_HOME"

// HomeDir returns the docqa home directory: $DOCQA_HOME if set, else ~/.docqa.
func HomeDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".docqa"), nil
}

// ConfigStore keeps settings in config.toml. Keys are dotted
// ("embedding.provider") and are written as nested tables
// ([embedding] provider = ...). Every change is saved before it returns.
type ConfigStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// NewConfigStore opens configDir/config.toml, or HomeDir()/config.toml
// when configDir is empty. The directory is created; the file is not
// written until the first change.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := HomeDir()
		if err != nil {
			return nil, err
		}
		configDir = home
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	s := &ConfigStore{path: filepath.Join(configDir, "config.toml"), values: map[string]any{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the config.toml path.
func (s *ConfigStore) Path() string { return s.path }

func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *ConfigStore) Set(key string, value any) error {
	return s.update(func(values map[string]any) bool {
		values[key] = value
		return true
	})
}

// Delete removes key. Deleting an absent key does not touch the file.
func (s *ConfigStore) Delete(key string) error {
	return s.update(func(values map[string]any) bool {
		_, ok := values[key]
		delete(values, key)
		return ok
	})
}

// update applies change to a copy of the values and keeps the copy only
// if it saves. change reports whether anything changed.
func (s *ConfigStore) update(change func(map[string]any) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	if !change(next) {
		return nil
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

// save replaces the file through a temporary sibling and a rename, so a
// crash never leaves a half-written config.
func (s *ConfigStore) save(values map[string]any) error {
	tree, err := nest(values)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0600)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// load reads the file. A missing file is an empty configuration.
func (s *ConfigStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.values = flatten(tree)
	return nil
}

// flatten turns nested tables into dotted keys: {"a": {"b": 1}} becomes {"a.b": 1}.
func flatten(tree map[string]any) map[string]any {
	flat := map[string]any{}
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			flat[k] = v
		}
	}
	walk("", tree)
	return flat
}

// nest is the inverse of flatten. A key that is both a value and a table
// prefix ("a" and "a.b") cannot be written and is an error.
func nest(flat map[string]any) (map[string]any, error) {
	tree := map[string]any{}
	for _, key := range slices.Sorted(maps.Keys(flat)) {
		parts := strings.Split(key, ".")
		node := tree
		for _, part := range parts[:len(parts)-1] {
			if _, ok := node[part]; !ok {
				node[part] = map[string]any{}
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("config key %q conflicts with value at %q", key, part)
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, taken := node[leaf]; taken {
			return nil, fmt.Errorf("config key %q conflicts with a table of the same name", key)
		}
		node[leaf] = flat[key]
	}
	return tree, nil
}
