package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

var startedAt = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.Local)

func setupTestServer(t *testing.T, mutate func(cfg *Config)) (*httptest.Server, *Config) {
	t.Helper()

	base := t.TempDir()
	cfg := &Config{
		DataDir:    filepath.Join(base, "store"),
		StagingDir: filepath.Join(base, "staging"),
		MaxSize:    1024,
		SuffixMode: "process",
		StartedAt:  startedAt,
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return ts, cfg
}

type uploadResponse struct {
	Message string `json:"message"`
	File    string `json:"file"`
	Size    int64  `json:"size"`
	URL     string `json:"url"`
}

// upload posts content as the "file" part with the filename written
// into the Content-Disposition header byte for byte.
func upload(t *testing.T, ts *httptest.Server, filename, content string) *http.Response {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "ignored"))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest("POST", ts.URL+"/api/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func uploadOK(t *testing.T, ts *httptest.Server, filename, content string) uploadResponse {
	t.Helper()

	resp := upload(t, ts, filename, content)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func list(t *testing.T, ts *httptest.Server) []string {
	t.Helper()

	resp, err := http.Get(ts.URL + "/uploads")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	return names
}

func do(t *testing.T, method, url string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestIntegration(t *testing.T) {
	ts, cfg := setupTestServer(t, nil)

	const name = "report_20240101120000.pdf"
	const content = "%PDF-1.7 test file content"

	t.Run("Upload", func(t *testing.T) {
		result := uploadOK(t, ts, "report.pdf", content)

		assert.Equal(t, name, result.File)
		assert.Equal(t, int64(len(content)), result.Size)
		assert.Equal(t, "/api/download/"+name, result.URL)
		assert.Equal(t, "File uploaded successfully", result.Message)
	})

	t.Run("List", func(t *testing.T) {
		assert.Equal(t, []string{name}, list(t, ts))
	})

	t.Run("Staging is empty", func(t *testing.T) {
		entries, err := os.ReadDir(cfg.Staging())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Download", func(t *testing.T) {
		resp, body := do(t, "GET", ts.URL+"/api/download/"+name)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, content, body)
		assert.Equal(t, "attachment; filename="+name, resp.Header.Get("Content-Disposition"))
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Empty(t, resp.Header.Get("Content-Security-Policy"))
	})

	t.Run("Download ignores ranges", func(t *testing.T) {
		req, err := http.NewRequest("GET", ts.URL+"/api/download/"+name, nil)
		require.NoError(t, err)
		req.Header.Set("Range", "bytes=0-3")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, content, string(body))
	})

	t.Run("Preview", func(t *testing.T) {
		resp, body := do(t, "GET", ts.URL+"/api/preview/"+name)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, content, body)
		assert.Equal(t, "inline; filename="+name, resp.Header.Get("Content-Disposition"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Equal(t, "sandbox", resp.Header.Get("Content-Security-Policy"))
	})

	t.Run("Delete", func(t *testing.T) {
		resp, body := do(t, "DELETE", ts.URL+"/api/delete/"+name)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"message":"File deleted successfully"}`, body)
		assert.Equal(t, []string{}, list(t, ts))
	})

	t.Run("Download after delete", func(t *testing.T) {
		resp, _ := do(t, "GET", ts.URL+"/api/download/"+name)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Delete after delete", func(t *testing.T) {
		resp, _ := do(t, "DELETE", ts.URL+"/api/delete/"+name)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUploadNonASCIINames(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	t.Run("utf-8", func(t *testing.T) {
		result := uploadOK(t, ts, "报告.pdf", "a")
		assert.Equal(t, "报告_20240101120000.pdf", result.File)
		assert.Equal(t, "/api/download/%E6%8A%A5%E5%91%8A_20240101120000.pdf", result.URL)

		resp, body := do(t, "GET", ts.URL+result.URL)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "a", body)
		assert.Equal(t, "attachment; filename*=utf-8''%E6%8A%A5%E5%91%8A_20240101120000.pdf", resp.Header.Get("Content-Disposition"))
	})

	t.Run("latin-1 transported", func(t *testing.T) {
		mangled, err := charmap.ISO8859_1.NewDecoder().String("数据.csv")
		require.NoError(t, err)

		result := uploadOK(t, ts, mangled, "b")
		assert.Equal(t, "数据_20240101120000.csv", result.File)
	})

	assert.ElementsMatch(t, []string{"报告_20240101120000.pdf", "数据_20240101120000.csv"}, list(t, ts))
}

func TestUploadRejectsTraversal(t *testing.T) {
	ts, cfg := setupTestServer(t, nil)

	for _, filename := range []string{"../escape.txt", "../../etc/cron.d/job", "nested/file.txt"} {
		t.Run(filename, func(t *testing.T) {
			resp := upload(t, ts, filename, "payload")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	assert.Empty(t, list(t, ts))

	entries, err := os.ReadDir(filepath.Dir(cfg.DataDir))
	require.NoError(t, err)
	for _, e := range entries {
		assert.Contains(t, []string{"store", "staging"}, e.Name())
	}

	staged, err := os.ReadDir(cfg.Staging())
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestFetchRejectsTraversal(t *testing.T) {
	ts, cfg := setupTestServer(t, nil)

	secret := filepath.Join(filepath.Dir(cfg.DataDir), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0644))

	for _, path := range []string{
		"/api/download/..%2Fsecret.txt",
		"/api/preview/..%2Fsecret.txt",
		"/api/download/..",
	} {
		t.Run(path, func(t *testing.T) {
			resp, body := do(t, "GET", ts.URL+path)
			assert.NotEqual(t, http.StatusOK, resp.StatusCode)
			assert.NotContains(t, body, "secret")
		})
	}

	resp, _ := do(t, "DELETE", ts.URL+"/api/delete/..%2Fsecret.txt")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err := os.Stat(secret)
	assert.NoError(t, err)
}

// In process mode every upload shares one suffix, so the second a.txt
// replaces the first: b.txt and the latest a.txt remain.
func TestDuplicateUploadsProcessMode(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	uploadOK(t, ts, "a.txt", "first")
	uploadOK(t, ts, "b.txt", "b")
	uploadOK(t, ts, "a.txt", "second")

	assert.ElementsMatch(t, []string{"a_20240101120000.txt", "b_20240101120000.txt"}, list(t, ts))

	_, body := do(t, "GET", ts.URL+"/api/download/a_20240101120000.txt")
	assert.Equal(t, "second", body)
}

func TestDuplicateUploadsCallMode(t *testing.T) {
	ts, _ := setupTestServer(t, func(cfg *Config) { cfg.SuffixMode = "call" })

	first := uploadOK(t, ts, "a.txt", "first")
	uploadOK(t, ts, "b.txt", "b")
	second := uploadOK(t, ts, "a.txt", "second")

	assert.NotEqual(t, first.File, second.File)
	assert.Len(t, list(t, ts), 3)

	_, body := do(t, "GET", ts.URL+first.URL)
	assert.Equal(t, "first", body)
	_, body = do(t, "GET", ts.URL+second.URL)
	assert.Equal(t, "second", body)
}

func TestUploadErrors(t *testing.T) {
	ts, cfg := setupTestServer(t, nil)

	t.Run("not multipart", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/upload", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no file part", func(t *testing.T) {
		body := new(bytes.Buffer)
		writer := multipart.NewWriter(body)
		require.NoError(t, writer.WriteField("tag", "latest"))
		require.NoError(t, writer.Close())

		resp, err := http.Post(ts.URL+"/api/upload", writer.FormDataContentType(), body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		resp := upload(t, ts, "big.bin", strings.Repeat("x", 4096))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

		assert.Empty(t, list(t, ts))
		staged, err := os.ReadDir(cfg.Staging())
		require.NoError(t, err)
		assert.Empty(t, staged)
	})
}

func TestStaticAndMetrics(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>files</h1>"), 0644))

	ts, _ := setupTestServer(t, func(cfg *Config) { cfg.StaticDir = static })

	resp, body := do(t, "GET", ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>files</h1>")

	uploadOK(t, ts, "m.txt", "metrics")

	resp, body = do(t, "GET", ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "files_drop_files_stored_total 1")
	assert.Contains(t, body, `route="POST /api/upload"`)
}

func TestNewFailsOnUnusableDataDir(t *testing.T) {
	occupied := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(occupied, []byte("x"), 0644))

	_, err := New(&Config{DataDir: occupied, StagingDir: filepath.Join(t.TempDir(), "s")})
	assert.Error(t, err)
}

func TestPreviewHTMLIsSandboxed(t *testing.T) {
	ts, _ := setupTestServer(t, nil)
	name := uploadOK(t, ts, "page.html", "<script>alert(document.cookie)</script>").File

	resp, _ := do(t, "GET", ts.URL+"/api/preview/"+name)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	assert.Equal(t, "sandbox", resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestStorageFailureHidesDetails(t *testing.T) {
	ts, cfg := setupTestServer(t, nil)
	require.NoError(t, os.RemoveAll(cfg.DataDir))

	resp, body := do(t, "GET", ts.URL+"/uploads")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Storage unavailable\n", body)
	assert.NotContains(t, body, cfg.DataDir)
}
