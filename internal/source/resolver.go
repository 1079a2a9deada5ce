// Package source turns user input into a local media file for the clip
// executor, downloading remote sources when needed.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"trim-it/internal/domain"
	"trim-it/internal/logging"
	"trim-it/internal/transfer"
)

// Kind classifies a source string.
type Kind string

const (
	KindLocal   Kind = "local"
	KindRemote  Kind = "remote"
	KindSegment Kind = "segment"
)

// Remote reports whether resolving this kind involves a download.
func (k Kind) Remote() bool {
	return k == KindRemote || k == KindSegment
}

type downloader interface {
	Download(ctx context.Context, rawURL string, onProgress transfer.ProgressFunc) (Download, error)
}

type segmentFetcher interface {
	Available() bool
	Fetch(ctx context.Context, rawURL string, window Window) (Segment, error)
}

var youTubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

// Resolver classifies sources and materializes them on local disk.
type Resolver struct {
	downloader downloader
	segments   segmentFetcher
	stat       func(string) (os.FileInfo, error)
	logger     *slog.Logger
}

// NewResolver wires the resolver. segments may be nil, in which case
// YouTube links are rejected.
func NewResolver(dl downloader, segments segmentFetcher, logger *slog.Logger) *Resolver {
	return &Resolver{
		downloader: dl,
		segments:   segments,
		stat:       os.Stat,
		logger:     logging.WithComponent(logger, "resolver"),
	}
}

// Classify decides how raw would be resolved without touching the network.
// It returns the trimmed source string.
func (r *Resolver) Classify(raw string) (Kind, string, error) {
	src := strings.TrimSpace(raw)
	if src == "" {
		return "", "", fmt.Errorf("%w: empty source", domain.ErrInvalidSource)
	}

	if info, err := r.stat(src); err == nil {
		if info.Mode().IsRegular() {
			return KindLocal, src, nil
		}
		return "", "", fmt.Errorf("%w: %s is not a regular file", domain.ErrInvalidSource, src)
	}

	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is neither an existing file nor an http(s) URL", domain.ErrInvalidSource, src)
	}

	if youTubeHosts[strings.ToLower(u.Hostname())] {
		if r.segments == nil || !r.segments.Available() {
			return "", "", fmt.Errorf("%w: YouTube links need yt-dlp on PATH", domain.ErrInvalidSource)
		}
		return KindSegment, src, nil
	}
	return KindRemote, src, nil
}

// Resolve materializes raw as a local file. Remote sources are downloaded
// to a temporary location that Release removes.
func (r *Resolver) Resolve(ctx context.Context, raw string, window Window, onProgress transfer.ProgressFunc) (*Resolved, error) {
	kind, src, err := r.Classify(raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindLocal:
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
		return &Resolved{Path: abs, Name: filepath.Base(abs), Kind: kind}, nil

	case KindSegment:
		seg, err := r.segments.Fetch(ctx, src, window)
		if err != nil {
			return nil, err
		}
		dir := seg.Dir
		return &Resolved{
			Path:       seg.Path,
			Name:       youTubeName(src),
			Kind:       kind,
			Temporary:  true,
			PreTrimmed: true,
			cleanup:    func() error { return removeDir(dir) },
		}, nil

	default:
		dl, err := r.downloader.Download(ctx, src, onProgress)
		if err != nil {
			return nil, err
		}
		file := dl.Path
		return &Resolved{
			Path:      dl.Path,
			Name:      remoteName(src),
			Kind:      kind,
			Temporary: true,
			Warnings:  dl.Warnings,
			cleanup:   func() error { return removeFile(file) },
		}, nil
	}
}

func remoteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "downloaded_video.mp4"
	}
	base := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if base == "" || base == "." || base == "/" {
		return "downloaded_video.mp4"
	}
	return base
}

func youTubeName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "youtube"
	}
	if id := u.Query().Get("v"); id != "" {
		return "youtube-" + id
	}
	if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
		return "youtube-" + base
	}
	return "youtube"
}

// NewResolverForTests creates a resolver with an injected stat function.
func NewResolverForTests(dl downloader, segments segmentFetcher, stat func(string) (os.FileInfo, error)) *Resolver {
	r := NewResolver(dl, segments, nil)
	if stat != nil {
		r.stat = stat
	}
	return r
}
