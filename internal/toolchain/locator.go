// Package toolchain locates, downloads and installs the ffmpeg binaries
// and owns the provisioning state machine.
package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
)

// Tool holds absolute paths of a usable ffmpeg install.
// FFprobe is empty when only ffmpeg is available.
type Tool struct {
	FFmpeg  string `json:"ffmpeg"`
	FFprobe string `json:"ffprobe,omitempty"`
}

// Locator finds executables in the app-data bin directory, then on PATH.
// It never modifies the filesystem.
type Locator struct {
	binDir   string
	goos     string
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

// NewLocator builds a locator using real OS dependencies.
func NewLocator(binDir string) *Locator {
	return &Locator{
		binDir:   binDir,
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
		stat:     os.Stat,
	}
}

// NewLocatorForTests creates a locator with injectable dependencies.
func NewLocatorForTests(
	binDir string,
	goos string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
) *Locator {
	return &Locator{binDir: binDir, goos: goos, lookPath: lookPath, stat: stat}
}

// BinDir returns the app-data bin directory searched first.
func (l *Locator) BinDir() string {
	return l.binDir
}

// Locate returns the ffmpeg install to use, preferring a sibling ffprobe.
func (l *Locator) Locate() (Tool, bool) {
	ffmpeg, ok := l.Find("ffmpeg")
	if !ok {
		return Tool{}, false
	}

	tool := Tool{FFmpeg: ffmpeg}
	sibling := filepath.Join(filepath.Dir(ffmpeg), ExecutableName(l.goos, "ffprobe"))
	if l.isExecutable(sibling) {
		tool.FFprobe = sibling
	} else if path, ok := l.Find("ffprobe"); ok {
		tool.FFprobe = path
	}
	return tool, true
}

// Find resolves one executable by name.
func (l *Locator) Find(name string) (string, bool) {
	if l.binDir != "" {
		candidate := filepath.Join(l.binDir, ExecutableName(l.goos, name))
		if l.isExecutable(candidate) {
			return candidate, true
		}
	}

	path, err := l.lookPath(name)
	if err != nil || path == "" {
		return "", false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, true
}

func (l *Locator) isExecutable(path string) bool {
	info, err := l.stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return l.goos == "windows" || info.Mode().Perm()&0o111 != 0
}

// ExecutableName appends the platform executable suffix.
func ExecutableName(goos, name string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}
