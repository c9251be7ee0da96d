package files

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrInvalidName reports a name that would resolve outside the store root.
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotFound reports an operation on a name with no stored file.
	ErrNotFound = errors.New("file not found")
	// ErrStorageUnavailable reports a filesystem I/O failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// File describes a stored file. Everything but the name is read from the filesystem.
type File struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// FileStorage defines the operations of the on-disk file store
type FileStorage interface {
	// Store moves the file at tempPath into the store and returns its stored name.
	Store(tempPath, originalName string) (string, error)

	// List returns the names of all stored files.
	List() ([]string, error)

	// Stat returns metadata for a stored file.
	Stat(name string) (*File, error)

	// Fetch opens a stored file for reading.
	Fetch(name string) (*File, io.ReadSeekCloser, error)

	// Remove deletes a stored file.
	Remove(name string) error
}
