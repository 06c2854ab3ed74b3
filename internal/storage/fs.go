package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS is a filesystem-backed Store rooted at a single directory. Object paths
// are resolved strictly inside the root; traversal outside it is rejected.
type FS struct {
	root string
}

// NewFS creates the root directory if needed and returns a filesystem store.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("storage: root directory cannot be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root %s: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", abs, err)
	}

	return &FS{root: abs}, nil
}

// resolve maps an opaque object path to an absolute filesystem path,
// rejecting anything that would escape the root.
func (f *FS) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("storage: object path cannot be empty")
	}

	full := filepath.Join(f.root, filepath.FromSlash(path))
	if full != f.root && !strings.HasPrefix(full, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: object path %s escapes store root", path)
	}

	return full, nil
}

// Write stores data under path, creating parent directories as needed.
func (f *FS) Write(path string, data []byte) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("storage: create prefix for %s: %w", path, err)
	}

	if err := os.WriteFile(full, data, 0o640); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}

	return nil
}

// Read returns the contents of the object at path.
func (f *FS) Read(path string) ([]byte, error) {
	full, err := f.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: read %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}

	return data, nil
}

// Exists reports whether an object is present at path.
func (f *FS) Exists(path string) bool {
	full, err := f.resolve(path)
	if err != nil {
		return false
	}

	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// Delete removes the object at path. Missing objects are ignored.
func (f *FS) Delete(path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}

	return nil
}

// DeleteAll removes every object under the given prefix.
func (f *FS) DeleteAll(prefix string) error {
	full, err := f.resolve(prefix)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("storage: delete prefix %s: %w", prefix, err)
	}

	return nil
}
