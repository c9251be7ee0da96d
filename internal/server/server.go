package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pavel-fokin/files-drop/internal/files"
	"github.com/pavel-fokin/files-drop/internal/fs"
	"github.com/pavel-fokin/files-drop/internal/metrics"
	"github.com/pavel-fokin/files-drop/internal/naming"
)

// New builds the HTTP server. The data directory is created and checked
// before the server is returned.
func New(cfg *Config) (*http.Server, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storage, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Storage ready", "data_dir", storage.Root(), "staging_dir", cfg.Staging(), "suffix_mode", cfg.SuffixMode)

	// Initialize file service
	fileService := files.NewService(storage, cfg.Staging())
	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("POST /api/upload", uploadFile(fileService, m))
	mux.HandleFunc("GET /api/download/{filename}", downloadFile(fileService))
	mux.HandleFunc("GET /api/preview/{filename}", previewFile(fileService))
	mux.HandleFunc("DELETE /api/delete/{filename}", deleteFile(fileService, m))
	mux.HandleFunc("GET /uploads", listFiles(fileService))
	if cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	handler := loggingMiddleware(m, cors(cfg.CORSOrigins, rateLimit(limiter, limitBody(mux, cfg.MaxSize))))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// NewStorage builds the file store described by cfg and initializes its root.
func NewStorage(cfg *Config) (*fs.Storage, error) {
	mode, err := naming.ParseMode(cfg.SuffixMode)
	if err != nil {
		return nil, err
	}
	suffixer, err := naming.NewSuffixer(mode, cfg.StartedAt)
	if err != nil {
		return nil, err
	}

	storage := fs.NewStorage(cfg.DataDir, naming.NewPolicy(suffixer))
	if err := storage.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return storage, nil
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func uploadFile(fileService *files.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
			return
		}

		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				http.Error(w, "No file provided", http.StatusBadRequest)
				return
			}
			if err != nil {
				writeUploadError(w, err, "")
				return
			}

			filename, ok := rawFilename(part)
			if part.FormName() != "file" || !ok {
				_ = part.Close()
				continue
			}

			result, err := fileService.Upload(&files.UploadRequest{
				Name:    filename,
				Content: part,
			})
			_ = part.Close()
			if err != nil {
				writeUploadError(w, err, filename)
				return
			}

			m.ObserveUpload(result.Size)
			slog.Info("File uploaded", "filename", filename, "stored_name", result.File, "size", result.Size)

			writeJSON(w, http.StatusCreated, result)
			return
		}
	}
}

func downloadFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveFile(w, r, fileService, "attachment")
	}
}

func previewFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveFile(w, r, fileService, "inline")
	}
}

func serveFile(w http.ResponseWriter, r *http.Request, fileService *files.Service, disposition string) {
	name := r.PathValue("filename")

	file, content, err := fileService.Fetch(name)
	if err != nil {
		writeError(w, err, name)
		return
	}
	defer content.Close()

	// Whole files only.
	r.Header.Del("Range")
	r.Header.Del("If-Range")

	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": file.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if disposition == "inline" {
		// Previewed HTML or SVG must not run scripts in our origin.
		w.Header().Set("Content-Security-Policy", "sandbox")
	}
	http.ServeContent(w, r, file.Name, file.ModTime, content)
}

func deleteFile(fileService *files.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("filename")

		if err := fileService.Remove(name); err != nil {
			writeError(w, err, name)
			return
		}

		m.ObserveRemove()
		slog.Info("File deleted", "filename", name)

		writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
	}
}

func listFiles(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := fileService.List()
		if err != nil {
			writeError(w, err, "")
			return
		}

		writeJSON(w, http.StatusOK, names)
	}
}

// rawFilename returns the filename parameter of a part as the client sent
// it. multipart.Part.FileName strips directories, which would hide
// traversal attempts from the store.
func rawFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		name := part.FileName()
		return name, name != ""
	}
	name, ok := params["filename"]
	return name, ok
}

func writeUploadError(w http.ResponseWriter, err error, filename string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		slog.Warn("Upload too large", "filename", filename, "limit", maxBytesErr.Limit)
		http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, files.ErrInvalidName), errors.Is(err, files.ErrStorageUnavailable):
		writeError(w, err, filename)
	default:
		slog.Warn("Upload aborted", "error", err, "filename", filename)
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
	}
}

// writeError maps store errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error, filename string) {
	switch {
	case errors.Is(err, files.ErrNotFound):
		slog.Info("File not found", "filename", filename)
		http.Error(w, "File not found", http.StatusNotFound)
	case errors.Is(err, files.ErrInvalidName):
		slog.Warn("Invalid file name", "error", err, "filename", filename)
		http.Error(w, "Invalid file name", http.StatusBadRequest)
	default:
		slog.Error("Storage failure", "error", err, "filename", filename)
		http.Error(w, "Storage unavailable", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
