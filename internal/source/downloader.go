package source

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trim-it/internal/domain"
	"trim-it/internal/logging"
	"trim-it/internal/metrics"
	"trim-it/internal/transfer"
)

const fallbackExt = ".mp4"

var mediaExts = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true,
	".avi": true, ".ts": true, ".flv": true, ".mpg": true, ".mpeg": true, ".3gp": true,
}

var extByContentType = map[string]string{
	"video/mp4":              ".mp4",
	"application/mp4":        ".mp4",
	"video/quicktime":        ".mov",
	"video/webm":             ".webm",
	"video/x-matroska":       ".mkv",
	"application/x-matroska": ".mkv",
	"video/x-msvideo":        ".avi",
	"video/mp2t":             ".ts",
	"video/x-flv":            ".flv",
	"video/mpeg":             ".mpg",
	"video/3gpp":             ".3gp",
}

// Download is a completed remote fetch on local disk.
type Download struct {
	Path        string
	ContentType string
	Bytes       int64
	Warnings    []string
}

// Downloader streams remote media into the temp directory.
type Downloader struct {
	client           *resty.Client
	tempDir          string
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewDownloader creates a downloader writing into tempDir.
func NewDownloader(client *resty.Client, tempDir string, logger *slog.Logger) *Downloader {
	if client == nil {
		client = transfer.NewClient()
	}
	return &Downloader{
		client:           client,
		tempDir:          tempDir,
		progressInterval: transfer.DefaultProgressInterval,
		logger:           logging.WithComponent(logger, "downloader"),
	}
}

// Download fetches rawURL to a unique temp file. The body is streamed, never
// buffered in memory, and the file is removed on every failure path.
func (d *Downloader) Download(ctx context.Context, rawURL string, onProgress transfer.ProgressFunc) (Download, error) {
	resp, err := transfer.Open(ctx, d.client, rawURL)
	if err != nil {
		return Download{}, err
	}
	defer resp.Close()

	var warnings []string
	if !isVideoContentType(resp.ContentType) {
		msg := fmt.Sprintf("server reported content type %q, the download may not be a video", resp.ContentType)
		warnings = append(warnings, msg)
		d.logger.Warn("unexpected content type", "url", logging.SanitizeURL(rawURL), "content_type", resp.ContentType)
	}

	file, err := createTemp(d.tempDir, extensionFor(rawURL, resp.ContentType))
	if err != nil {
		return Download{}, fmt.Errorf("%w: create temporary file: %v", domain.ErrDisk, err)
	}
	tmpPath := file.Name()

	n, copyErr := transfer.Copy(ctx, file, resp.Body, resp.ContentLength, d.progressInterval, onProgress)
	closeErr := file.Close()
	metrics.DownloadBytes.WithLabelValues("media").Add(float64(n))

	switch {
	case copyErr != nil:
		err = copyErr
	case closeErr != nil:
		err = fmt.Errorf("%w: close temporary file: %v", domain.ErrDisk, closeErr)
	case resp.ContentLength > 0 && n != resp.ContentLength:
		err = fmt.Errorf("%w: short body: got %d of %d bytes", domain.ErrNetwork, n, resp.ContentLength)
	}
	if err != nil {
		_ = removeFile(tmpPath)
		return Download{}, err
	}

	d.logger.Info("download complete", "url", logging.SanitizeURL(rawURL), "bytes", n)
	return Download{
		Path:        tmpPath,
		ContentType: resp.ContentType,
		Bytes:       n,
		Warnings:    warnings,
	}, nil
}

func isVideoContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "video/") {
		return true
	}
	switch mediaType {
	case "application/octet-stream", "binary/octet-stream", "application/mp4", "application/x-matroska":
		return true
	}
	return false
}

// extensionFor keeps the URL's media extension when it has one, then falls
// back to the content type. ffmpeg sniffs the container either way.
func extensionFor(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if mediaExts[ext] {
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extByContentType[mediaType]; ok {
			return ext
		}
	}
	return fallbackExt
}

// NewDownloaderForTests creates a downloader with a short progress interval.
func NewDownloaderForTests(client *resty.Client, tempDir string) *Downloader {
	d := NewDownloader(client, tempDir, nil)
	d.progressInterval = time.Millisecond
	return d
}
