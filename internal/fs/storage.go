package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pavel-fokin/files-drop/internal/files"
	"github.com/pavel-fokin/files-drop/internal/naming"
)

// Storage implements files.FileStorage on a single directory.
//
// There is no locking: every operation is one rename, unlink, open or
// readdir, and the filesystem makes each of those atomic.
type Storage struct {
	root   string
	policy *naming.Policy
}

// NewStorage creates a filesystem storage rooted at root. Call Initialize
// before use.
func NewStorage(root string, policy *naming.Policy) *Storage {
	return &Storage{
		root:   filepath.Clean(root),
		policy: policy,
	}
}

// Root returns the cleaned root directory.
func (s *Storage) Root() string {
	return s.root
}

// Initialize creates the root directory and its parents and checks that it
// is a writable directory. It is safe to call on every start.
func (s *Storage) Initialize() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("%w: failed to create data directory: %w", files.ErrStorageUnavailable, err)
	}

	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: failed to stat data directory: %w", files.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", files.ErrStorageUnavailable, s.root)
	}
	if err := writable(s.root); err != nil {
		return fmt.Errorf("%w: data directory is not writable: %w", files.ErrStorageUnavailable, err)
	}

	return nil
}

// Store moves the file at tempPath into the root under a name derived from
// originalName. tempPath is left in place if the move fails.
func (s *Storage) Store(tempPath, originalName string) (string, error) {
	name := s.policy.Name(originalName)

	target, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.Rename(tempPath, target); err != nil {
		return "", fmt.Errorf("%w: failed to move file into place: %w", files.ErrStorageUnavailable, err)
	}

	return name, nil
}

// List returns the names of the entries directly inside the root.
func (s *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read data directory: %w", files.ErrStorageUnavailable, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names, nil
}

// Stat returns metadata for a stored file.
func (s *Storage) Stat(name string) (*files.File, error) {
	path, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, s.statError(err)
	}
	if info.IsDir() {
		return nil, files.ErrNotFound
	}

	return &files.File{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Fetch opens a stored file. The caller must close the returned reader.
func (s *Storage) Fetch(name string) (*files.File, io.ReadSeekCloser, error) {
	path, err := s.lookup(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, s.statError(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: failed to stat file: %w", files.ErrStorageUnavailable, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, files.ErrNotFound
	}

	return &files.File{Name: name, Size: info.Size(), ModTime: info.ModTime()}, f, nil
}

// Remove deletes a stored file.
func (s *Storage) Remove(name string) error {
	path, err := s.lookup(name)
	if err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return s.statError(err)
	}
	if info.IsDir() {
		return files.ErrNotFound
	}

	if err := os.Remove(path); err != nil {
		return s.statError(err)
	}

	return nil
}

// resolve is the single place where a name becomes a path. It rejects any
// name whose path is not a direct child of the root.
func (s *Storage) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`+"\x00") {
		return "", fmt.Errorf("%w: %q", files.ErrInvalidName, name)
	}

	target := filepath.Join(s.root, name)
	if filepath.Dir(target) != s.root || filepath.Base(target) != name {
		return "", fmt.Errorf("%w: %q", files.ErrInvalidName, name)
	}

	return target, nil
}

// lookup resolves names of existing files. A name that cannot be resolved
// cannot name a stored file, so it is reported as not found.
func (s *Storage) lookup(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", files.ErrNotFound, err)
	}
	return path, nil
}

func (s *Storage) statError(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return files.ErrNotFound
	}
	return fmt.Errorf("%w: %w", files.ErrStorageUnavailable, err)
}
