// Package workspace implements the per-task file store shared between the
// host and the sandbox container. The directory doubles as the agent's
// external memory: the progress document and every artifact live here.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPathEscape is returned when a name would resolve outside the workspace.
var ErrPathEscape = errors.New("path escapes workspace")

// ErrNotFound is returned when reading or deleting a missing file.
var ErrNotFound = errors.New("file not found in workspace")

// Store reads and writes plain files rooted at one task's directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created on first
// write, not here.
func NewStore(dir string) *Store {
	return &Store{root: filepath.Clean(dir)}
}

// Root returns the absolute workspace directory.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a relative name to an absolute path inside the workspace,
// rejecting absolute names and traversal.
func (s *Store) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrPathEscape)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	path := filepath.Join(s.root, name)
	if path != s.root && !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	if path == s.root {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return path, nil
}

// Save writes content to name, creating the workspace and any parent
// directories as needed.
func (s *Store) Save(name, content string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Read returns the content of name.
func (s *Store) Read(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// Delete removes name.
func (s *Store) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is present.
func (s *Store) Exists(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// List returns the workspace file names matching pattern ("*" for all),
// relative to the root and sorted. Internal scratch files written by the
// sandbox (the "_agent_" prefix) are excluded.
func (s *Store) List(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list workspace: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_agent_") {
			continue
		}
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup removes the entire workspace directory.
func (s *Store) Cleanup() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("cleanup workspace: %w", err)
	}
	return nil
}
