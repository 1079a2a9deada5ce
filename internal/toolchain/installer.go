package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/go-resty/resty/v2"

	"trim-it/internal/domain"
	"trim-it/internal/logging"
	"trim-it/internal/metrics"
	"trim-it/internal/process"
	"trim-it/internal/transfer"
)

// Archive is one downloaded release asset on disk.
type Archive struct {
	Path  string
	Asset Asset
}

// Installer downloads a platform release into the app-data directory,
// extracts the binaries and verifies them.
type Installer struct {
	client           *resty.Client
	runner           process.Runner
	binDir           string
	downloadDir      string
	release          func() (Release, error)
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewInstaller builds an installer for the running platform.
func NewInstaller(client *resty.Client, binDir, downloadDir string, logger *slog.Logger) *Installer {
	if client == nil {
		client = transfer.NewClient()
	}
	return &Installer{
		client:           client,
		runner:           process.ExecRunner{},
		binDir:           binDir,
		downloadDir:      downloadDir,
		release: func() (Release, error) {
			return SelectRelease(goruntime.GOOS, goruntime.GOARCH)
		},
		progressInterval: transfer.DefaultProgressInterval,
		logger:           logging.WithComponent(logger, "installer"),
	}
}

// Download fetches every asset of the platform release. onProgress gets an
// overall percentage, or -1 when the server does not announce a length.
// Partial files are removed on failure.
func (i *Installer) Download(ctx context.Context, onProgress func(percent int)) ([]Archive, error) {
	rel, err := i.release()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(i.downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", domain.ErrDisk, i.downloadDir, err)
	}

	count := len(rel.Assets)
	archives := make([]Archive, 0, count)
	for idx, asset := range rel.Assets {
		i.logger.Info("downloading ffmpeg archive", "release", rel.ID, "url", asset.URL)
		path, err := i.fetch(ctx, idx, asset, func(written, total int64) {
			if onProgress == nil {
				return
			}
			pct := transfer.Percent(written, total)
			if pct < 0 {
				onProgress(-1)
				return
			}
			onProgress((idx*100 + pct) / count)
		})
		if err != nil {
			removeArchives(archives)
			return nil, err
		}
		archives = append(archives, Archive{Path: path, Asset: asset})
	}
	return archives, nil
}

// fetch streams one asset to <downloadDir>/<n>.<format>, via a .download
// file that is renamed into place only after a complete transfer.
func (i *Installer) fetch(ctx context.Context, idx int, asset Asset, onProgress transfer.ProgressFunc) (string, error) {
	dest := filepath.Join(i.downloadDir, fmt.Sprintf("ffmpeg-%d.%s", idx, asset.Format))
	tmpPath := dest + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: remove stale temp file: %v", domain.ErrDisk, err)
	}

	resp, err := transfer.Open(ctx, i.client, asset.URL)
	if err != nil {
		return "", err
	}
	defer resp.Close()

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create temporary file: %v", domain.ErrDisk, err)
	}

	n, copyErr := transfer.Copy(ctx, file, resp.Body, resp.ContentLength, i.progressInterval, onProgress)
	closeErr := file.Close()
	metrics.DownloadBytes.WithLabelValues("archive").Add(float64(n))
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return "", copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close temporary file: %v", domain.ErrDisk, closeErr)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: short body: got %d of %d bytes", domain.ErrNetwork, n, resp.ContentLength)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: move archive into place: %v", domain.ErrDisk, err)
	}
	return dest, nil
}

// Install extracts binaries into a staging directory, then moves them into
// the bin directory. Archives are removed afterwards either way.
func (i *Installer) Install(ctx context.Context, archives []Archive) error {
	defer removeArchives(archives)

	if err := os.MkdirAll(i.binDir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrDisk, i.binDir, err)
	}
	staging, err := os.MkdirTemp(i.binDir, ".staging-*")
	if err != nil {
		return fmt.Errorf("%w: create staging dir: %v", domain.ErrDisk, err)
	}
	defer os.RemoveAll(staging)

	var staged []string
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		written, err := extractBinaries(archive.Path, archive.Asset.Format, staging, archive.Asset.Binaries)
		if err != nil {
			return err
		}
		staged = append(staged, written...)
	}

	for _, src := range staged {
		target := filepath.Join(i.binDir, filepath.Base(src))
		if err := os.Rename(src, target); err != nil {
			return fmt.Errorf("%w: install %s: %v", domain.ErrDisk, filepath.Base(src), err)
		}
		i.logger.Info("installed binary", "path", logging.SanitizePath(target))
	}
	return nil
}

// Verify runs a tiny synthetic encode to prove the binary works.
func (i *Installer) Verify(ctx context.Context, tool Tool) error {
	log, err := i.runner.Run(ctx, tool.FFmpeg, VerifyArgs()...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s failed verification: %v (%s)",
			domain.ErrCorruptArchive, tool.FFmpeg, err, process.Truncate(log.Stderr, 300))
	}
	return nil
}

// VerifyArgs encodes 0.1s of a null source into the null muxer.
func VerifyArgs() []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-f", "lavfi",
		"-i", "nullsrc=d=0.1",
		"-t", "0.1",
		"-f", "null",
		"-",
	}
}

func removeArchives(archives []Archive) {
	for _, a := range archives {
		_ = os.Remove(a.Path)
	}
}

// NewInstallerForTests creates an installer with injectable dependencies.
func NewInstallerForTests(client *resty.Client, runner process.Runner, binDir, downloadDir string, rel Release) *Installer {
	return &Installer{
		client:           client,
		runner:           runner,
		binDir:           binDir,
		downloadDir:      downloadDir,
		release:          func() (Release, error) { return rel, nil },
		progressInterval: time.Millisecond,
		logger:           logging.Discard(),
	}
}
