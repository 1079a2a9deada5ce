package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/transfer"
)

// TestDownloadStreamsToTempFile covers the success path.
func TestDownloadStreamsToTempFile(t *testing.T) {
	body := strings.Repeat("v", 300*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/webm")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	d := NewDownloaderForTests(transfer.NewClient(), tempDir)

	var last int64
	dl, err := d.Download(context.Background(), srv.URL+"/clips/source.webm", func(written, total int64) { last = written })
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if filepath.Dir(dl.Path) != tempDir {
		t.Fatalf("path = %q, want inside %q", dl.Path, tempDir)
	}
	name := filepath.Base(dl.Path)
	if !strings.HasPrefix(name, "trimit-") || filepath.Ext(name) != ".webm" {
		t.Fatalf("file name = %q", name)
	}
	if dl.Bytes != int64(len(body)) || last != int64(len(body)) {
		t.Fatalf("bytes = %d, last progress = %d, want %d", dl.Bytes, last, len(body))
	}
	if len(dl.Warnings) != 0 {
		t.Fatalf("warnings = %v, want none", dl.Warnings)
	}
	data, err := os.ReadFile(dl.Path)
	if err != nil || len(data) != len(body) {
		t.Fatalf("downloaded %d bytes, err = %v", len(data), err)
	}
}

// TestDownloadWarnsOnNonVideoContentType keeps the file and adds a warning.
func TestDownloadWarnsOnNonVideoContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	d := NewDownloaderForTests(transfer.NewClient(), t.TempDir())
	dl, err := d.Download(context.Background(), srv.URL+"/watch", nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if len(dl.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", dl.Warnings)
	}
	if filepath.Ext(dl.Path) != ".mp4" {
		t.Fatalf("ext = %q, want fallback .mp4", filepath.Ext(dl.Path))
	}
}

// TestDownloadBadStatusLeavesNoFile maps non-2xx to ErrBadStatus.
func TestDownloadBadStatusLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	d := NewDownloaderForTests(transfer.NewClient(), tempDir)
	_, err := d.Download(context.Background(), srv.URL+"/missing.mp4", nil)
	if !errors.Is(err, domain.ErrBadStatus) {
		t.Fatalf("error = %v, want %v", err, domain.ErrBadStatus)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error %q should carry the status", err)
	}
	assertNoFiles(t, tempDir)
}

// TestDownloadMidStreamFailureLeavesNoFile drops the connection mid-body.
func TestDownloadMidStreamFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	d := NewDownloaderForTests(transfer.NewClient(), tempDir)
	_, err := d.Download(context.Background(), srv.URL+"/v.mp4", nil)
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("error = %v, want %v", err, domain.ErrNetwork)
	}
	assertNoFiles(t, tempDir)
}

// TestDownloadCancelLeavesNoFile cancels while the server stalls.
func TestDownloadCancelLeavesNoFile(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	d := NewDownloaderForTests(transfer.NewClient(), tempDir)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := d.Download(ctx, srv.URL+"/v.mp4", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v", err, context.Canceled)
	}
	assertNoFiles(t, tempDir)
}

// TestDownloadDiskFailure reports ErrDisk when the temp dir is unusable.
func TestDownloadDiskFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video"))
	}))
	defer srv.Close()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	d := NewDownloaderForTests(transfer.NewClient(), blocker)
	_, err := d.Download(context.Background(), srv.URL+"/v.mp4", nil)
	if !errors.Is(err, domain.ErrDisk) {
		t.Fatalf("error = %v, want %v", err, domain.ErrDisk)
	}
}

// TestExtensionFor prefers URL extensions then content types.
func TestExtensionFor(t *testing.T) {
	cases := []struct {
		url, contentType, want string
	}{
		{"https://x.test/a/b.MOV", "application/octet-stream", ".mov"},
		{"https://x.test/play?id=1", "video/x-matroska", ".mkv"},
		{"https://x.test/file.php", "video/quicktime", ".mov"},
		{"https://x.test/file", "", ".mp4"},
	}
	for _, tc := range cases {
		if got := extensionFor(tc.url, tc.contentType); got != tc.want {
			t.Fatalf("extensionFor(%q, %q) = %q, want %q", tc.url, tc.contentType, got, tc.want)
		}
	}
}

func assertNoFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files in %s, found %d", dir, len(entries))
	}
}
