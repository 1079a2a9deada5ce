package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/process"
	"trim-it/internal/transfer"
)

type fakeDownloader struct {
	calls int
	dir   string
	err   error
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL string, onProgress transfer.ProgressFunc) (Download, error) {
	f.calls++
	if f.err != nil {
		return Download{}, f.err
	}
	path := filepath.Join(f.dir, "trimit-1-abc.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return Download{}, err
	}
	return Download{Path: path, Warnings: []string{"odd content type"}}, nil
}

type fakeSegments struct {
	available bool
	calls     int
	dir       string
	window    Window
}

func (f *fakeSegments) Available() bool { return f.available }

func (f *fakeSegments) Fetch(ctx context.Context, rawURL string, window Window) (Segment, error) {
	f.calls++
	f.window = window
	dir, err := os.MkdirTemp(f.dir, "trimit-segment-*")
	if err != nil {
		return Segment{}, err
	}
	path := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(path, []byte("segment"), 0o644); err != nil {
		return Segment{}, err
	}
	return Segment{Dir: dir, Path: path}, nil
}

// TestResolveLocalFile returns an absolute path and never deletes the input.
func TestResolveLocalFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "holiday.mov")
	if err := os.WriteFile(input, []byte("video"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	dl := &fakeDownloader{dir: dir}
	r := NewResolver(dl, nil, nil)

	res, err := r.Resolve(context.Background(), "  "+input+"  ", Window{}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Kind != KindLocal || res.Temporary || res.Path != input || res.Name != "holiday.mov" {
		t.Fatalf("resolved = %+v", res)
	}
	if err := res.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("local input must survive Release: %v", err)
	}
	if dl.calls != 0 {
		t.Fatalf("downloader calls = %d, want 0", dl.calls)
	}
}

// TestResolveInvalidSourceSkipsDownloader rejects non-files and non-URLs.
func TestResolveInvalidSourceSkipsDownloader(t *testing.T) {
	dl := &fakeDownloader{dir: t.TempDir()}
	segs := &fakeSegments{available: true}
	r := NewResolver(dl, segs, nil)

	for _, raw := range []string{
		"",
		"/definitely/not/here.mp4",
		"not a url",
		"ftp://example.com/video.mp4",
		"http:///missing-host.mp4",
		t.TempDir(),
	} {
		_, err := r.Resolve(context.Background(), raw, Window{}, nil)
		if !errors.Is(err, domain.ErrInvalidSource) {
			t.Fatalf("Resolve(%q) error = %v, want %v", raw, err, domain.ErrInvalidSource)
		}
	}
	if dl.calls != 0 || segs.calls != 0 {
		t.Fatalf("downloader calls = %d, segment calls = %d, want 0", dl.calls, segs.calls)
	}
}

// TestResolveRemoteReleaseRemovesFile checks the temp guard.
func TestResolveRemoteReleaseRemovesFile(t *testing.T) {
	dl := &fakeDownloader{dir: t.TempDir()}
	r := NewResolver(dl, &fakeSegments{}, nil)

	res, err := r.Resolve(context.Background(), "https://cdn.example.com/media/My%20Talk.mp4?sig=1", Window{}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Kind != KindRemote || !res.Temporary || res.Name != "My Talk.mp4" {
		t.Fatalf("resolved = %+v", res)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want downloader warning", res.Warnings)
	}

	if err := res.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := res.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if _, err := os.Stat(res.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file should be removed, stat err = %v", err)
	}
}

// TestResolveRemotePropagatesDownloadError keeps the error kind.
func TestResolveRemotePropagatesDownloadError(t *testing.T) {
	dl := &fakeDownloader{err: domain.ErrBadStatus}
	r := NewResolver(dl, nil, nil)

	_, err := r.Resolve(context.Background(), "http://example.com/v.mp4", Window{}, nil)
	if !errors.Is(err, domain.ErrBadStatus) {
		t.Fatalf("error = %v, want %v", err, domain.ErrBadStatus)
	}
}

// TestResolveYouTubeSegment routes YouTube links to the segment fetcher.
func TestResolveYouTubeSegment(t *testing.T) {
	dl := &fakeDownloader{dir: t.TempDir()}
	segs := &fakeSegments{available: true, dir: t.TempDir()}
	r := NewResolver(dl, segs, nil)
	window := Window{Start: 10 * time.Second, End: 25 * time.Second}

	res, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=abc123", window, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.PreTrimmed || res.Kind != KindSegment || res.Name != "youtube-abc123" {
		t.Fatalf("resolved = %+v", res)
	}
	if segs.window != window {
		t.Fatalf("window = %+v, want %+v", segs.window, window)
	}
	if dl.calls != 0 {
		t.Fatalf("downloader calls = %d, want 0", dl.calls)
	}

	dir := filepath.Dir(res.Path)
	if err := res.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("segment dir should be removed, stat err = %v", err)
	}
}

// TestResolveYouTubeWithoutYTDLP rejects the link with a hint.
func TestResolveYouTubeWithoutYTDLP(t *testing.T) {
	dl := &fakeDownloader{dir: t.TempDir()}
	r := NewResolver(dl, &fakeSegments{available: false}, nil)

	_, err := r.Resolve(context.Background(), "https://youtu.be/abc123", Window{}, nil)
	if !errors.Is(err, domain.ErrInvalidSource) {
		t.Fatalf("error = %v, want %v", err, domain.ErrInvalidSource)
	}
	if dl.calls != 0 {
		t.Fatalf("downloader calls = %d, want 0", dl.calls)
	}
}

// TestSegmentFetcherArgsAndCleanup drives the yt-dlp wrapper with a fake runner.
func TestSegmentFetcherArgsAndCleanup(t *testing.T) {
	tempDir := t.TempDir()
	var gotArgs []string
	runner := runnerFunc(func(ctx context.Context, name string, args ...string) (process.Log, error) {
		gotArgs = args
		out := args[len(args)-2]
		path := filepath.Join(filepath.Dir(out), "video.mp4")
		return process.Log{Command: name}, os.WriteFile(path, []byte("segment"), 0o644)
	})
	f := NewSegmentFetcherForTests(runner, tempDir, func(string) (string, error) { return "/usr/bin/yt-dlp", nil })

	seg, err := f.Fetch(context.Background(), "https://youtu.be/x", Window{Start: 1500 * time.Millisecond, End: 4 * time.Second})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if filepath.Base(seg.Path) != "video.mp4" {
		t.Fatalf("path = %q", seg.Path)
	}
	if gotArgs[3] != "*1.500-4.000" {
		t.Fatalf("sections = %q, want *1.500-4.000", gotArgs[3])
	}

	failing := runnerFunc(func(ctx context.Context, name string, args ...string) (process.Log, error) {
		return process.Log{ExitCode: 1, Stderr: "ERROR: Video unavailable"}, domain.ErrSubprocessNonZero
	})
	f = NewSegmentFetcherForTests(failing, tempDir, nil)
	_, err = f.Fetch(context.Background(), "https://youtu.be/x", Window{End: time.Second})
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("error = %v, want %v", err, domain.ErrNetwork)
	}

	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 1 {
		t.Fatalf("temp dir entries = %d, want only the successful segment", len(entries))
	}
}

type runnerFunc func(ctx context.Context, name string, args ...string) (process.Log, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) (process.Log, error) {
	return f(ctx, name, args...)
}
