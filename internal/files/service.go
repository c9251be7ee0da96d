package files

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
)

// Service provides application-level file operations
type Service struct {
	storage    FileStorage
	stagingDir string
}

// NewService creates a new file service. Uploads are staged in stagingDir,
// which must be outside the store root and on the same filesystem.
func NewService(storage FileStorage, stagingDir string) *Service {
	return &Service{
		storage:    storage,
		stagingDir: stagingDir,
	}
}

// UploadRequest represents a file upload request
type UploadRequest struct {
	// Name is the client-declared filename exactly as received.
	Name    string
	Content io.Reader
}

// UploadResult represents the result of a file upload
type UploadResult struct {
	Message string `json:"message"`
	File    string `json:"file"`
	Size    int64  `json:"size"`
	URL     string `json:"url"`
}

// Upload stages the request content and moves it into the store.
// The staging file is removed whenever the upload does not complete.
func (s *Service) Upload(req *UploadRequest) (*UploadResult, error) {
	tempPath, size, err := s.stage(req.Content)
	if err != nil {
		return nil, err
	}

	name, err := s.storage.Store(tempPath, req.Name)
	if err != nil {
		s.discard(tempPath)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &UploadResult{
		Message: "File uploaded successfully",
		File:    name,
		Size:    size,
		URL:     DownloadURL(name),
	}, nil
}

// List returns the names of all stored files
func (s *Service) List() ([]string, error) {
	return s.storage.List()
}

// Fetch opens a stored file by name
func (s *Service) Fetch(name string) (*File, io.ReadSeekCloser, error) {
	return s.storage.Fetch(name)
}

// Remove deletes a stored file by name
func (s *Service) Remove(name string) error {
	return s.storage.Remove(name)
}

// DownloadURL returns the relative download link for a stored name.
func DownloadURL(name string) string {
	return "/api/download/" + url.PathEscape(name)
}

// stage copies content into a new file in the staging directory.
func (s *Service) stage(content io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", 0, fmt.Errorf("%w: failed to create staging directory: %w", ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(s.stagingDir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: failed to create staging file: %w", ErrStorageUnavailable, err)
	}

	size, err := io.Copy(stagingWriter{tmp}, content)
	if err != nil {
		_ = tmp.Close()
		s.discard(tmp.Name())
		// Write errors already carry ErrStorageUnavailable; read errors
		// from the client are returned without it.
		return "", 0, fmt.Errorf("failed to write upload content: %w", err)
	}

	if err := tmp.Close(); err != nil {
		s.discard(tmp.Name())
		return "", 0, fmt.Errorf("%w: failed to close staging file: %w", ErrStorageUnavailable, err)
	}

	return tmp.Name(), size, nil
}

// stagingWriter marks write failures on the staging file (disk full, file
// size limit) as storage errors.
type stagingWriter struct {
	f *os.File
}

func (w stagingWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return n, nil
}

func (s *Service) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove staging file", "path", path, "error", err)
	}
}
